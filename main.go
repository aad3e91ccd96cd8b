package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-server-go/config"
	"welfare-server-go/db"
	"welfare-server-go/logging"
	"welfare-server-go/photos"
	"welfare-server-go/service"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "welfare",
	Short: "Household welfare classification server",
	Long: `welfare records households, classifies them as Miskin, Menengah or Kaya
from income, education, number of children and occupation, and exports
reports as Excel or PDF.

Run "welfare serve" to start the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Path(configPath))
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Env, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default $CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, importCmd, exportCmd, classifyCmd, userCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openStore opens the SQLite database and the household service on top of it
func openStore() (*db.SQLite, *service.Households, error) {
	store, err := db.NewSQLite(cfg.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	photoStore, err := photos.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Debug("storage opened", zap.String("path", cfg.StoragePath), zap.String("uploads", cfg.UploadDir))
	return store, service.NewHouseholds(store, photoStore, logger), nil
}
