package main

import (
	"context"

	"github.com/peteowen1/bouncerdata/cmd/bouncerdata/commands"
	"github.com/peteowen1/bouncerdata/lib/serviceutil"
	"github.com/peteowen1/bouncerdata/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	tel, telErr := telemetry.SetupFromEnv(context.Background(), "bouncerdata")
	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)

	// flush batched spans and metrics before the process exits
	if telErr == nil {
		tel.Shutdown(context.Background())
	}
}
