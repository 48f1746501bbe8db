package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"guardex/server"
	"os"
	"os/signal"
	"syscall"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the REST API (auth, scan history, voice agent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		h, err := newAPIHandler(cfg, db)
		if err != nil {
			return err
		}

		logrus.Infof("✅ API listening on %s", cfg.Server.Addr())
		return server.New(cfg.Server, h).Listen(ctx)
	},
}
