package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rockhoundapp/rockhound/internal/config"
	"github.com/rockhoundapp/rockhound/internal/photos"
	"github.com/rockhoundapp/rockhound/internal/store"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "rh",
	Short: "Offline-first field find catalog",
	Long: `rockhound catalogs field finds (photo + location + notes) into
sessions, queues remote AI identification, audits the photo store for
drift, and syncs everything to a remote authoritative store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"data directory (default ~/.rockhound)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(syncCmd)
}

// app bundles the handles every subcommand needs. Built per invocation,
// never a process-wide singleton, so tests can run against temp stores.
type app struct {
	cfg    *config.Config
	store  *store.Store
	photos *photos.Store
	logOut io.Writer
}

// openApp loads config, opens the store and brings the schema up to
// date. Migrations run on every start; they are additive and idempotent.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}

	logOut := logWriter(cfg)

	st, err := store.Open(cfg.DBPath(), componentLogger(logOut, "store"))
	if err != nil {
		return nil, err
	}

	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := st.ApplyColumnMigrations(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	ph, err := photos.New(cfg.PhotosDir())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, photos: ph, logOut: logOut}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}

func (a *app) logger(component string) *log.Logger {
	return componentLogger(a.logOut, component)
}

// logWriter returns stderr, teed into a rotating file when configured.
func logWriter(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	return io.MultiWriter(os.Stderr, rotated)
}

func componentLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory and config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Init(dataDir)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath(), nil)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := st.ApplyColumnMigrations(ctx); err != nil {
			return err
		}
		if _, err := photos.New(cfg.PhotosDir()); err != nil {
			return err
		}

		fmt.Printf("Initialized %s (device %s)\n", cfg.DataDir, cfg.DeviceID)
		return nil
	},
}
