package socket

import (
	"guardex/models"
)

const (
	EventStartScan    = "start_scan"
	EventScanUpdate   = "scan_update"
	EventScanComplete = "scan_complete"
	EventError        = "error"
)

const msgScanRunning = "❌ A scan is already running on this connection."

// errorPayload is the data of an error event.
type errorPayload struct {
	Message string `json:"message"`
}

// connectPayload answers a namespace CONNECT.
type connectPayload struct {
	SID string `json:"sid"`
}

func scanUpdate(message string) models.ScanUpdate {
	return models.ScanUpdate{Message: message}
}
