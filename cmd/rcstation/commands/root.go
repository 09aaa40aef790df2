package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rcstation/internal/config"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "rcstation",
	Short: "RC device provisioning station",
	Long: `Drives an operator through connecting a device, checking its test and
calibration record, printing its label and confirming the label scan.

Without a subcommand the interactive console is started.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		return nil
	},
	RunE: runTUI,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./rcstation.yaml or $HOME/.rcstation/rcstation.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional KEY=VALUE file exported before config is read")

	rootCmd.PersistentFlags().String("backend-url", "http://127.0.0.1:5000", "Device backend base URL")
	rootCmd.PersistentFlags().Duration("request-timeout", 5*time.Second, "Timeout for one backend request")
	rootCmd.PersistentFlags().String("model", "", "Device model filter, e.g. RC-102 (empty accepts any)")
	rootCmd.PersistentFlags().String("models-file", "", "YAML model catalog (default built-in catalog)")
	rootCmd.PersistentFlags().String("http-addr", "127.0.0.1:8097", "Local status API address (empty disables it)")
	rootCmd.PersistentFlags().String("log-file", "logs/rcstation.log", "Log file used by the console")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	viper.BindPFlag("backend-url", rootCmd.PersistentFlags().Lookup("backend-url"))
	viper.BindPFlag("request-timeout", rootCmd.PersistentFlags().Lookup("request-timeout"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("models-file", rootCmd.PersistentFlags().Lookup("models-file"))
	viper.BindPFlag("http-addr", rootCmd.PersistentFlags().Lookup("http-addr"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
