// Package cmd wires the CLI commands around the engine
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/engine"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/logging"
	"github.com/askdb/askdb/internal/retry"
	"github.com/askdb/askdb/internal/schema"
)

var (
	flagDialect  string
	flagDSN      string
	flagLogLevel string
	flagModel    string
	flagProvider string
	flagMaxRows  int
)

var rootCmd = &cobra.Command{
	Use:   "askdb",
	Short: "Ask questions of your database in natural language",
	Long: `askdb converts natural-language questions into safe SQL SELECT statements
and runs them against a SQLite, MySQL, or PostgreSQL database. Generated SQL
passes a multi-stage sanitizer before anything is executed: only single,
read-only, row-bounded statements ever reach the database.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var structured *errors.Error
		if stderrors.As(err, &structured) {
			for _, suggestion := range structured.Suggestions {
				fmt.Fprintf(os.Stderr, "  hint: %s\n", suggestion)
			}
		}
	}

	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDialect, "dialect", "", "Database dialect: sqlite, mysql, or postgres")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "Database connection string")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model name for SQL generation")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "LLM provider: openai, anthropic, or ollama")
	rootCmd.PersistentFlags().IntVar(&flagMaxRows, "max-rows", 0, "Maximum rows returned by a query")
}

var activeConfig *config.Config

// setup loads the layered configuration and initializes logging before any
// command runs.
func setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfigWithOverrides(map[string]interface{}{
		"dialect":   flagDialect,
		"dsn":       flagDSN,
		"log-level": flagLogLevel,
		"model":     flagModel,
		"provider":  flagProvider,
		"max-rows":  flagMaxRows,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration")
	}

	cfg.ExpandAllPaths()

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.GetLogger().Warnf("falling back to stderr logging: %v", err)
	}

	activeConfig = cfg

	return nil
}

// openConn opens the configured target database
func openConn(cfg *config.Config) (db.Conn, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to connect to database").
			WithSuggestion("Check --dialect and --dsn, or the database section of the config file")
	}

	return conn, nil
}

// newRecorder builds the configured history store
func newRecorder(cfg *config.Config) (history.Recorder, error) {
	if cfg.History.Backend == "sqlite" {
		return history.NewSQLiteStore(cfg.History.Path)
	}

	return history.NewMemoryStore(cfg.History.MaxEntries), nil
}

// newEngine assembles the pipeline from configuration. The returned cleanup
// closes the connection and the history store.
func newEngine(cfg *config.Config) (*engine.Engine, db.Conn, func(), error) {
	logger := logging.GetLogger()

	conn, err := openConn(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	service, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, nil, err
	}

	recorder, err := newRecorder(cfg)
	if err != nil {
		_ = conn.Close()
		return nil, nil, nil, err
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.LLM.RetryAttempts
	policy.InitialDelay = cfg.LLM.RetryDelayDuration()
	policy.Retryable = llm.IsRetryable
	policy.Logger = logger

	eng := engine.New(
		service,
		schema.NewCache(cfg.Cache.Capacity, cfg.Cache.TTLDuration()),
		executor.New(cfg.Database.MaxRows, cfg.Database.QueryTimeoutDuration(), logger),
		recorder,
		policy,
		logger,
	)

	cleanup := func() {
		_ = recorder.Close()
		_ = conn.Close()
	}

	return eng, conn, cleanup, nil
}
