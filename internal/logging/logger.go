// Package logging provides the process-wide structured logger for ananke.
package logging

import "go.uber.org/zap"

// Sugar is the package-level logger used throughout ananke once Init has run.
var Sugar *zap.SugaredLogger

// Init builds the process logger. Debug mode favors readable console output
// over the JSON encoding used in production.
func Init(debug bool) error {
	var log *zap.Logger
	var err error
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	Sugar = log.Sugar()
	return nil
}

// Sync flushes any buffered log entries.
func Sync() {
	if Sugar != nil {
		_ = Sugar.Sync()
	}
}
