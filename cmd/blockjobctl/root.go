package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-block-jobs/pkg/config"
	"github.com/jdziat/simple-block-jobs/pkg/storage"
)

// cli holds state shared by the subcommands.
type cli struct {
	configPath string
	jsonOut    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "blockjobctl",
		Short: "Run block copy jobs and inspect their history",
		Long: `blockjobctl copies one block device or image file to another as a
background job. Jobs can be paused, rate limited and cancelled, and every
status change is recorded in a SQLite or PostgreSQL history database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = cfg.Logger(cmd.ErrOrStderr())
			slog.SetDefault(c.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultFile, "Configuration file")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Output in JSON format")

	root.AddCommand(
		newCopyCmd(c),
		newHistoryCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)
	return root
}

// openStore opens the history database named by the configuration and
// migrates it.
func (c *cli) openStore(ctx context.Context) (*storage.GormStore, error) {
	var dialector gorm.Dialector
	pool := storage.DefaultPoolConfig()
	switch c.cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(c.cfg.Database.DSN)
	default:
		dialector = sqlite.Open(c.cfg.Database.DSN)
		pool = storage.SQLitePoolConfig()
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	store, err := storage.NewGormStoreWithPool(db, storage.WithPoolConfig(pool))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.GormStore) {
	if sqlDB, err := store.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// printJSON outputs data as indented JSON.
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
