// Package logger wraps the standard logger with a fixed prefix and two
// verbosity switches.
package logger

import "log"

const prefix = "ads1256: "

var (
	// Quiet suppresses Info output. Errors are always written.
	Quiet bool
	// Verbose enables Debug output.
	Verbose bool
)

// Info writes an informational message unless Quiet is set.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

// Debug writes a message only when Verbose is set.
func Debug(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	log.Printf(prefix+"debug: "+format, args...)
}

// Error writes an error message.
func Error(format string, args ...interface{}) {
	log.Printf(prefix+"error: "+format, args...)
}
