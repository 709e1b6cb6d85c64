package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hed1ad/energyguard/internal/config"
	"github.com/hed1ad/energyguard/internal/logger"
	"github.com/hed1ad/energyguard/internal/store"
)

var (
	cfgFile  string
	dbPath   string
	envFile  string
	logLevel string

	cfg     *config.Config
	log     *slog.Logger
	logFile *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "energyguard",
	Short: "Detect anomalies in building energy consumption",
	Long: `EnergyGuard stores energy readings in a local SQLite database, flags
anomalous consumption with density, cluster or reconstruction based detectors
and turns the findings into efficiency recommendations.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default is ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// setup loads configuration and builds the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv()

	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logFile, err = logger.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	log = logger.Module(logFile.Logger, "cli")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// openDB opens the database connection
func openDB() (*store.DB, error) {
	path := cfg.Database.Path

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return store.New(path)
}
