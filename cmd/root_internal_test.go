package cmd

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"guardex/config"
	"guardex/models"
	"path/filepath"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "guardex dev")
}

func TestNewKeyPool_NoKeys(t *testing.T) {
	pool, err := newKeyPool(config.LLMConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "cmd.db"), LogLevel: "silent"},
		Security: config.SecurityConfig{JWTSecret: "secret", BcryptCost: 4},
		Crawler:  config.CrawlerConfig{MaxDepth: 1, Workers: 1},
		Scanner:  config.ScannerConfig{ChunkSize: 1000, ChunkWorkers: 1, SummaryBatch: 5, Plugins: []string{"llm", "secrets"}},
	}
}

func TestWiring_WithoutKeys(t *testing.T) {
	c := testConfig(t)
	db, err := openDatabase(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sc, closeCrawler, err := newScanner(c, db)
	require.NoError(t, err)
	require.NotNil(t, sc)
	closeCrawler()

	h, err := newAPIHandler(c, db)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestCLIEmitter(t *testing.T) {
	e := &cliEmitter{}
	progress := 50
	e.Update(models.ScanUpdate{Message: "📄 Scanning file 1/2", Progress: &progress})
	assert.False(t, e.done)

	e.Complete([]models.Vulnerability{})
	assert.True(t, e.done)
	assert.NotNil(t, e.vulns)
}
