package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/griddeck/griddeck/internal/config"
	"github.com/griddeck/griddeck/internal/database"
	"github.com/griddeck/griddeck/internal/drafts"
	"github.com/griddeck/griddeck/internal/logging"
	"github.com/griddeck/griddeck/internal/meta"
	"github.com/griddeck/griddeck/internal/postgres"
	"github.com/griddeck/griddeck/internal/server"
	"github.com/griddeck/griddeck/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "griddeck-api",
		Short: "Griddeck console draft-row service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("session-path", defaults.GetString("session.path"), "SQLite session database path")
	cmd.PersistentFlags().String("session-context", defaults.GetString("session.context"), "Snapshot context key for session restore")
	cmd.PersistentFlags().String("postgres-url", "", "Postgres connection URL for the managed database")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "session.path", "session-path")
	bindFlag(cmd, "session.context", "session-context")
	bindFlag(cmd, "postgres.url", "postgres-url")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.SessionDBPath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionStore, err := session.NewStore(session.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	draftStore := drafts.NewStore(drafts.StoreConfig{
		Clock:      time.Now,
		IDProvider: drafts.NewUUIDProvider(),
		Defaults:   meta.NewStandardRegistry(),
		Logger:     logger,
	})
	draftStore.Restore(sessionStore.Load(ctx, appConfig.SessionContext))

	dispatcher := server.NewProgressDispatcher()

	var metadataProvider meta.Provider
	var submitter *drafts.Submitter
	if appConfig.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, appConfig.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		provider, err := meta.NewPostgresProvider(pool, logger)
		if err != nil {
			return err
		}
		metadataProvider = provider

		creator, err := postgres.NewCreator(pool, logger)
		if err != nil {
			return err
		}
		submitter, err = drafts.NewSubmitter(drafts.SubmitterConfig{
			Store:     draftStore,
			Creator:   creator,
			Callbacks: server.ProgressCallbacks(dispatcher),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("postgres.url not configured; metadata and submission endpoints disabled")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:     draftStore,
		Submitter: submitter,
		Metadata:  metadataProvider,
		Progress:  dispatcher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	persistSession := func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sessionStore.Save(saveCtx, appConfig.SessionContext, draftStore.Snapshot())
	}

	select {
	case <-signalCtx.Done():
		persistSession()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		persistSession()
		return err
	}
}
