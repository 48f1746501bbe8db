package cmd

import (
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"guardex/assistant"
	"guardex/auth"
	"guardex/config"
	"guardex/database"
	"guardex/llm"
	"guardex/mailer"
	"guardex/plugin"
	"guardex/scanner"
	"guardex/server"
	"guardex/summarizer"
)

func openDatabase(c *config.Config) (*database.DB, error) {
	db, err := database.New(c.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newKeyPool returns nil when no key is configured. Callers must not store a
// nil *llm.Pool in an interface.
func newKeyPool(c config.LLMConfig) (*llm.Pool, error) {
	pool, err := llm.NewPool(c)
	if errors.Is(err, llm.ErrNoKeys) {
		return nil, nil
	}
	return pool, err
}

// newScanner builds the scan pipeline. The returned func releases the
// crawler's shared browser.
func newScanner(c *config.Config, db *database.DB) (*scanner.Scanner, func(), error) {
	pool, err := newKeyPool(c.LLM)
	if err != nil {
		return nil, nil, err
	}

	var (
		rotator   llm.Rotator
		completer llm.Completer
	)
	if pool != nil {
		rotator, completer = pool, pool
		logrus.Infof("LLM key pool ready with %d key(s)", pool.Size())
	} else {
		logrus.Warn("no LLM keys configured, findings are summarized locally")
	}

	plugins := plugin.NewManager(plugin.Settings{
		Plugins: plugin.ParsePlugins(c.Scanner.Plugins),
		Model:   c.LLM.Model,
	}, rotator)
	summary := summarizer.New(completer, c.LLM.SummaryModel, c.Scanner.SummaryBatch)

	newCrawler, closeCrawler := scanner.NewCrawlerFactory(c.Crawler)
	return scanner.New(c.Scanner, db, newCrawler, plugins, summary), closeCrawler, nil
}

func newAPIHandler(c *config.Config, db *database.DB) (*server.Handler, error) {
	authSvc := auth.NewService(
		db,
		auth.NewHasher(c.Security.BcryptCost),
		auth.NewTokenManager(c.Security.JWTSecret, c.Security.TokenTTL),
		mailer.New(c.Mail),
		c.FrontendURL,
	)

	var chat llm.Completer
	if c.Assistant.OpenAIKey != "" {
		pool, err := llm.NewPool(config.LLMConfig{
			Endpoint:      c.Assistant.Endpoint,
			Keys:          []string{c.Assistant.OpenAIKey},
			RotationLimit: 1,
		})
		if err != nil {
			return nil, err
		}
		chat = pool
	} else {
		logrus.Warn("assistant.openai_key is empty, voice agent is disabled")
	}

	return server.NewHandler(authSvc, db, assistant.New(c.Assistant, chat)), nil
}
