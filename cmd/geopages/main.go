package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/geopages/internal/command"
	"github.com/TobiSchelling/geopages/internal/config"
	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/generate"
	"github.com/TobiSchelling/geopages/internal/llm"
	"github.com/TobiSchelling/geopages/internal/pipeline"
	"github.com/TobiSchelling/geopages/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envFile    string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "geopages",
	Short:   "Geo landing-page content pipeline",
	Long:    "geopages generates, validates and publishes SEO landing pages for states and cities, with versioned rollback.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Warning: error loading %s: %v", envFile, err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if strings.EqualFold(cfg.Logging.Level, "DEBUG") {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to .env file with provider API keys")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("geopages", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/geopages/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider. Publishing policy is changed with 'geopages settings set'.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entity, page and queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Geo entities:")
		fmt.Printf("  States: %d (%d active, %d with pages)\n", stats.States.Total, stats.States.Active, stats.States.WithPages)
		fmt.Printf("  Cities: %d (%d active, %d with pages)\n", stats.Cities.Total, stats.Cities.Active, stats.Cities.WithPages)
		fmt.Println("\nLive pages:")
		fmt.Printf("  State pages: %d\n", stats.Pages[database.PageTypeState])
		fmt.Printf("  City pages: %d\n", stats.Pages[database.PageTypeCity])
		fmt.Printf("  Versions kept: %d\n", stats.Versions)
		fmt.Println("\nQueue:")
		for _, s := range database.AllStatuses {
			fmt.Printf("  %-18s %d\n", s+":", stats.Queue[s])
		}
		fmt.Printf("\nGenerations today: %d\n", stats.GenerationsToday)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the command API and page preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, newHandler(db, true), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DatabasePath())
}

// newHandler wires the pipeline behind a command handler. The LLM provider
// is only probed when the command may generate content.
func newHandler(db *database.DB, withProvider bool) *command.Handler {
	var provider llm.Provider
	if withProvider {
		g := cfg.Generation
		provider = llm.CreateProvider(g.Provider, g.Model, g.OllamaURL, g.OpenAIModel, g.APIKeyEnv)
	}
	pipe := pipeline.New(db, generate.New(provider, cfg.Generation.MaxTokens), pipeline.Options{
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		GenerationTimeout: cfg.Generation.Timeout,
		ManualPriority:    cfg.Pipeline.ManualPriority,
		BulkPriority:      cfg.Pipeline.BulkPriority,
	})
	return command.NewHandler(db, pipe)
}

// dispatch runs one command against a fresh database handle and returns its
// data, or the command's error.
func dispatch(action command.Action, payload any, withProvider bool) (any, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp := newHandler(db, withProvider).Dispatch(context.Background(), command.Request{Action: action, Payload: raw})
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}
	return resp.Data, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
