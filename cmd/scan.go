package cmd

import (
	"encoding/json"
	"fmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"guardex/models"
	"guardex/scanner"
	"os"
	"os/signal"
	"syscall"
)

var scanUserID string

// cliEmitter logs progress and keeps the final findings.
type cliEmitter struct {
	done  bool
	vulns []models.Vulnerability
}

func (e *cliEmitter) Update(u models.ScanUpdate) {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if u.Progress != nil {
		entry = entry.WithField("progress", *u.Progress)
	}
	entry.Info(u.Message)
}

func (e *cliEmitter) Complete(vulns []models.Vulnerability) {
	e.done = true
	e.vulns = vulns
}

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan a website once and print the findings as JSON",
	Args:  cobra.ExactArgs(1),
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

		emit := &cliEmitter{}
		sc.Run(ctx, scanner.Request{URL: args[0], UserID: scanUserID}, emit)
		sc.Wait()

		if !emit.done {
			return fmt.Errorf("scan of %s did not complete", args[0])
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(emit.vulns)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanUserID, "user", "u", "cli", "user id the scan is recorded under")
}
