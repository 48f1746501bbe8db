package server

import (
	"context"
	"guardex/assistant"
	"guardex/database"
	"guardex/models"
)

// response defines the basic HTTP response returned by the server.
type response struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// LoginRequestAPI defines the JSON structure for incoming login requests.
type LoginRequestAPI struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse defines the JSON structure for a successful login.
type LoginResponse struct {
	Message string            `json:"message"`
	User    models.PublicUser `json:"user"`
	Token   string            `json:"token"`
}

// ScansResponse defines the JSON structure listing the scans of a user.
type ScansResponse struct {
	Scans []models.ScanDTO `json:"scans"`
}

// ScanResponse defines the JSON structure of a single scan.
type ScanResponse struct {
	Scan models.ScanDTO `json:"scan"`
}

// ScanStore reads persisted scans.
type ScanStore interface {
	ScansByUser(ctx context.Context, userID string) ([]database.ScanDB, error)
	ScanByID(ctx context.Context, id uint) (*database.ScanDB, error)
}

// VoiceAgent answers spoken questions.
type VoiceAgent interface {
	Handle(ctx context.Context, in assistant.Input) (*assistant.Response, error)
}
