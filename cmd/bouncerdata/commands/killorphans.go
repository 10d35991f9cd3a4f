package commands

import (
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/peteowen1/bouncerdata/lib/pidfile"
	"github.com/peteowen1/bouncerdata/lib/serviceutil"
)

var killOrphansDryRun bool

func init() {
	killOrphansCmd.Flags().BoolVar(&killOrphansDryRun, "dry-run", false, "report orphaned browsers without killing them")
	rootCmd.AddCommand(killOrphansCmd)
}

var killOrphansCmd = &cobra.Command{
	Use:   "kill-orphans",
	Short: "Kills browser processes left behind by scraper runs that died without cleaning up.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		files, err := pidfile.List(cfg.DataDir)
		if err != nil {
			serviceutil.Fatal("failed to list pidfiles", err)
		}

		killed := 0
		for _, f := range files {
			alive, err := process.PidExistsWithContext(ctx, int32(f.OwnerPID))
			if err != nil {
				slog.WarnContext(ctx, "failed to check scraper process",
					"pid", f.OwnerPID, "err", err)
				continue
			}
			if alive {
				continue
			}

			for _, pid := range f.BrowserPIDs {
				exists, err := process.PidExistsWithContext(ctx, int32(pid))
				if err != nil || !exists {
					continue
				}
				if killOrphansDryRun {
					slog.InfoContext(ctx, "would kill orphaned browser",
						"browser_pid", pid, "owner_pid", f.OwnerPID)
					continue
				}
				p, err := process.NewProcessWithContext(ctx, int32(pid))
				if err != nil {
					continue
				}
				// Chrome spawns renderer children, take those down first.
				children, _ := p.ChildrenWithContext(ctx)
				for _, child := range children {
					child.KillWithContext(ctx)
				}
				if err := p.KillWithContext(ctx); err != nil {
					slog.WarnContext(ctx, "failed to kill orphaned browser",
						"browser_pid", pid, "err", err)
					continue
				}
				killed++
				slog.InfoContext(ctx, "killed orphaned browser",
					"browser_pid", pid, "owner_pid", f.OwnerPID)
			}

			if !killOrphansDryRun {
				if err := os.Remove(f.Path); err != nil {
					slog.WarnContext(ctx, "failed to remove stale pidfile",
						"path", f.Path, "err", err)
				}
			}
		}

		slog.InfoContext(ctx, "kill-orphans done",
			"pidfiles", len(files), "killed", killed)
	},
}
