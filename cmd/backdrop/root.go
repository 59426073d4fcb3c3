package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	cfg     *config.Config
	appLog  logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "backdrop",
	Short: "Video background replacement",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg, err = config.ParseConfig(v)
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		l := logger.NewApiLogger(cfg)
		l.InitLogger()
		appLog = l
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a config file (default: built-in defaults plus environment)")
}
