// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"os"

	"github.com/pterm/pterm"
)

var logger = pterm.DefaultLogger.WithWriter(os.Stderr)

// Setup configures the process-wide logger once from validated configuration.
// The level is never mutated after this call.
func Setup(debug bool) {
	if debug {
		logger = logger.WithLevel(pterm.LogLevelDebug)
		logger.Debug("debug logging enabled")
		return
	}
	logger = logger.WithLevel(pterm.LogLevelInfo)
}

// L returns the process-wide logger.
func L() *pterm.Logger { return logger }

// Args builds structured key-value arguments for the logger.
func Args(kv ...any) []pterm.LoggerArgument { return logger.Args(kv...) }
