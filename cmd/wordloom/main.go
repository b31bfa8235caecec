package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"wordloom/internal/backend"
	"wordloom/internal/config"
	"wordloom/internal/guardrails"
	"wordloom/internal/logging"
	"wordloom/internal/orchestrator"
	"wordloom/internal/platform"
	"wordloom/internal/router"
	"wordloom/internal/store"
	"wordloom/internal/worker"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wordloom",
	Short: "wordloom - multi-agent writing platform",
	Long: `wordloom routes writing requests to specialized workers, executes them
as dependency-aware workflows, and gates delivery through hallucination,
quality, and deviation guardrails.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is fine; the environment may carry the key directly.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		return logging.Initialize(logging.Options{
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
			Directory:  cfg.Logging.Directory,
			Categories: cfg.Logging.Categories,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildService wires the full platform stack from configuration.
func buildService(reg prometheus.Registerer) (*platform.Service, error) {
	if cfg.Backend.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set WORDLOOM_API_KEY or GEMINI_API_KEY")
	}

	gen, err := backend.NewGeminiBackend(context.Background(), cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	registry := worker.NewDefaultRegistry(gen)
	rt := router.New(cfg.Router, registry, gen)
	orch := orchestrator.New(cfg.Orchestrator, registry, orchestrator.NewCollector(reg))
	pipeline := guardrails.New(cfg.Guardrails, gen, nil)

	var archive *store.Archive
	if cfg.Store.Enabled {
		archive, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
	}

	return platform.New(cfg, rt, orch, pipeline, registry, archive), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wordloom version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wordloom %s\n", cfg.Version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
