package plugin

import (
	"context"
	"guardex/models"
)

// Plugin analyzes a single chunk of JavaScript.
type Plugin interface {
	Name() string
	Run(ctx context.Context, chunk *models.Chunk) ([]models.Vulnerability, error)
}
