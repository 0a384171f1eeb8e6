package main

import (
	"io"
	"os"

	"cuview/utils"
)

// logFile opens the next free cuview_N.log in dir, discarding logs when that fails.
func logFile(dir string) io.Writer {
	if dir == "" {
		return io.Discard
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return io.Discard
	}
	file, err := os.OpenFile(utils.NextAvailableFilename(dir, "cuview", ".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.Discard
	}
	return file
}
