// Package handlers implements the checking, reading, reporting, and
// writing handlers (§4.6-4.9), grounded on
// original_source/miniserver_gateway/connectors/fb_bus/handlers/*.py.
package handlers

import "time"

// Attempt budgets and timing windows, transcribed from the Python
// handlers' module-level constants.
const (
	MaxTransmitAttempts = 5
	PingDelay           = 15 * time.Second
	ReadingDelay        = 500 * time.Millisecond
	WriteAckWindow      = 100 * time.Millisecond
)
