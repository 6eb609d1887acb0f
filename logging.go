package main

import (
	"log"
	"os"
	"path/filepath"
)

var logger *log.Logger

// setupLogging points the global logger at debug.log inside the app data
// dir. Truncates on startup; falls back to append when the file is locked
// by a previous instance still flushing.
func setupLogging(logFile string) {
	_ = os.MkdirAll(filepath.Dir(logFile), 0755)
	handle, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		handle, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Printf("Failed to open log file: %v", err)
			return
		}
	}
	log.SetOutput(handle)
	log.SetFlags(log.LstdFlags)
	logger = log.New(handle, "", log.LstdFlags)
	logger.Printf("=== Level Manager v%s Started ===", currentVersion)
	logger.Printf("Log file location: %s", logFile)
}
