// Package pidfile tracks which browser processes belong to which
// scraper run, so a later cleanup pass can kill browsers whose owning
// scraper died without shutting them down.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File is one scraper run's pidfile: the owner process and the browser
// process ids it launched.
type File struct {
	Path        string
	OwnerPID    int
	BrowserPIDs []int
}

func pathFor(dir string, ownerPID int) string {
	return filepath.Join(dir, fmt.Sprintf(".bouncerdata_%d.pid", ownerPID))
}

// Write records the current process's browser pids in dir, replacing
// any previous record for this process.
func Write(dir string, browserPIDs []int) (string, error) {
	path := pathFor(dir, os.Getpid())
	var b strings.Builder
	for _, pid := range browserPIDs {
		fmt.Fprintln(&b, pid)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes the current process's pidfile.
func Remove(dir string) {
	os.Remove(pathFor(dir, os.Getpid()))
}

// List reads every pidfile in dir.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []File
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, ".bouncerdata_") || !strings.HasSuffix(name, ".pid") {
			continue
		}
		ownerRaw := strings.TrimSuffix(strings.TrimPrefix(name, ".bouncerdata_"), ".pid")
		ownerPID, err := strconv.Atoi(ownerRaw)
		if err != nil {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		f := File{Path: path, OwnerPID: ownerPID}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if pid, err := strconv.Atoi(line); err == nil {
				f.BrowserPIDs = append(f.BrowserPIDs, pid)
			}
		}
		files = append(files, f)
	}
	return files, nil
}
