package cmd

import (
	"context"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"guardex/socket"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var shutdownTimeout time.Duration

var socketCmd = &cobra.Command{
	Use:   "socket",
	Short: "Run the live scan socket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		sc, closeCrawler, err := newScanner(cfg, db)
		if err != nil {
			return err
		}
		defer closeCrawler()

		srv := socket.New(cfg.Socket, sc)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			logrus.Info("shutting down socket server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("socket shutdown: %v", err)
		}
		sc.Wait()
		return nil
	},
}

func init() {
	socketCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "time allowed for running scans to stop")
}
