package cmd

import (
	"fmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"guardex/config"
	"guardex/logger"
	"os"
)

var (
	cfgFile string
	envName string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "guardex",
	Short:         "JavaScript secret and vulnerability scanner",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		loaded, err := config.Load(cfgFile, envName)
		if err != nil {
			return err
		}
		if err := logger.Init(loaded.Log); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the command selected on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file or directory (default is ./configs)")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "environment name, selects config.<env>.yaml")

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(socketCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
