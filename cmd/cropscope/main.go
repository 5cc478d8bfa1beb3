package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/cropscope/internal/archive"
	"github.com/TobiSchelling/cropscope/internal/config"
	"github.com/TobiSchelling/cropscope/internal/database"
	"github.com/TobiSchelling/cropscope/internal/logger"
	"github.com/TobiSchelling/cropscope/internal/pipeline"
	"github.com/TobiSchelling/cropscope/internal/server"
	"github.com/TobiSchelling/cropscope/internal/swot"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        logrus.FieldLogger = logrus.StandardLogger()
	closeLog                      = func() error { return nil }
)

func main() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// Commands that work without a config file.
var noConfig = map[string]bool{"init": true, "version": true, "parse": true}

var rootCmd = &cobra.Command{
	Use:     "cropscope",
	Short:   "Agricultural risk profiles",
	Long:    "cropscope combines a generated SWOT narrative with agricultural statistics, weather, market and imagery data for a country and commodity.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noConfig[cmd.Name()] {
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

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		l, closeFn, err := logger.New(level, cfg.Logging.File)
		if err != nil {
			return err
		}
		log, closeLog = l, closeFn
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(faostatCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cropscope", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/cropscope/",
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
		fmt.Println("Set ANTHROPIC_API_KEY (and optionally OPENWEATHER_API_KEY, TRADING_ECONOMICS_API_KEY) before running an analysis.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and configuration status",
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
		schema, _ := db.SchemaVersion()

		fmt.Printf("Database: %s (schema v%d)\n\n", db.Path(), schema)
		fmt.Println("Analyses:")
		fmt.Printf("  Saved: %d\n", stats.Analyses)
		fmt.Printf("  Archived: %d\n", stats.ArchivedAnalyses)
		fmt.Printf("  Countries: %d\n", stats.Countries)
		fmt.Println("\nFAOSTAT:")
		fmt.Printf("  Items: %d\n", stats.FAOItems)
		fmt.Printf("  Areas: %d\n", stats.FAOAreas)
		fmt.Printf("  Observations: %d\n", stats.FAOObservations)
		fmt.Println("\nCredentials:")
		printKey("Generation ("+cfg.Generation.Provider+")", cfg.Generation.APIKeyEnv)
		printKey("Climate", cfg.Providers.Climate.APIKeyEnv)
		printKey("Market", cfg.Providers.Market.APIKeyEnv)
		if cfg.Archive.Enabled {
			fmt.Printf("\nArchive: %s/%s\n", cfg.Archive.Endpoint, cfg.Archive.Bucket)
		}
		return nil
	},
}

func printKey(label, env string) {
	state := "missing"
	if os.Getenv(env) != "" {
		state = "set"
	}
	fmt.Printf("  %s: %s (%s)\n", label, state, env)
}

// --- analyze command ---

var (
	analyzeCountry   string
	analyzeCommodity string
	analyzeSave      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis and print the composite result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := pipeline.NewFromConfig(cfg, log)
		c, err := p.Run(ctx, pipeline.Query{Country: analyzeCountry, Commodity: analyzeCommodity})
		if err != nil {
			var ge *pipeline.GenerationError
			if errors.As(err, &ge) {
				return fmt.Errorf("%s (%w)", ge.Message(), err)
			}
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return err
		}

		if !analyzeSave {
			return nil
		}
		return saveComposite(ctx, c)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCountry, "country", "", "Country name")
	analyzeCmd.Flags().StringVar(&analyzeCommodity, "commodity", "", "Commodity or crop")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Store the analysis in the database")
	analyzeCmd.MarkFlagRequired("country")
	analyzeCmd.MarkFlagRequired("commodity")
}

func saveComposite(ctx context.Context, c *pipeline.Composite) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	failures := make([]string, len(c.PartialFailures))
	for i, f := range c.PartialFailures {
		failures[i] = string(f)
	}
	a := &database.Analysis{
		Country:         c.Country,
		Commodity:       c.Commodity,
		Narrative:       c.Narrative,
		Strengths:       c.SWOT.Strengths,
		Weaknesses:      c.SWOT.Weaknesses,
		Opportunities:   c.SWOT.Opportunities,
		Threats:         c.SWOT.Threats,
		PartialFailures: failures,
		CreatedAt:       c.GeneratedAt,
	}
	if err := db.InsertAnalysis(a); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved analysis %s\n", a.ID)

	store, err := openArchive(ctx)
	if err != nil {
		log.WithError(err).Warn("Archive unavailable; analysis saved locally only")
		return nil
	}
	if store == nil {
		return nil
	}
	url, err := store.Archive(ctx, a)
	if err != nil {
		log.WithError(err).Warn("Archiving analysis failed")
		return nil
	}
	return db.SetArchiveURL(a.ID, url)
}

// --- parse command ---

var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Extract SWOT sections from a markdown narrative",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("reading narrative: %w", err)
		}

		sections := swot.Parse(string(data))
		if parseJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sections)
		}
		if sections.Empty() {
			fmt.Fprintln(os.Stderr, "No SWOT sections found.")
			return nil
		}
		fmt.Print(sections.Markdown())
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print sections as JSON")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		opts := server.Options{
			DB:          db,
			Analyzer:    pipeline.NewFromConfig(cfg, log),
			Logger:      log,
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
			RateBurst:   cfg.Server.RateBurst,
		}
		store, err := openArchive(ctx)
		if err != nil {
			log.WithError(err).Warn("Archive unavailable; reports will not be uploaded")
		} else if store != nil {
			opts.Archiver = store
		}

		srv, err := server.New(opts)
		if err != nil {
			return err
		}

		port := servePort
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- faostat command ---

var faostatCmd = &cobra.Command{
	Use:   "faostat",
	Short: "Manage local FAOSTAT data",
}

var faostatImportCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import a FAOSTAT bulk-download CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := db.ImportCSV(f)
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[0], err)
		}

		fmt.Println("Import complete:")
		fmt.Printf("  Observations: %d\n", res.Rows)
		fmt.Printf("  Items: %d\n", res.Items)
		fmt.Printf("  Skipped rows: %d\n", res.Skipped)
		return nil
	},
}

func init() {
	faostatCmd.AddCommand(faostatImportCmd)
}

func openDB() (*database.DB, error) {
	return database.OpenWithLogger(cfg.DBPath(), log)
}

// openArchive returns nil, nil when archiving is disabled.
func openArchive(ctx context.Context) (*archive.Store, error) {
	ac := cfg.Archive
	if !ac.Enabled {
		return nil, nil
	}
	return archive.New(ctx, ac, os.Getenv(ac.AccessKeyEnv), os.Getenv(ac.SecretKeyEnv), log)
}
