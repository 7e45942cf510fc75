// Package servecmder provides the serve command, which runs the webhook and
// memory API together with the memory worker pool and the reconciler.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/mnemo/api"
	"github.com/papercomputeco/mnemo/api/mcp"
	"github.com/papercomputeco/mnemo/cmd/mnemo/backend"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/ingest/worker"
	"github.com/papercomputeco/mnemo/pkg/ledger"
	"github.com/papercomputeco/mnemo/pkg/media"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/recorder"
)

type serveCommander struct {
	configDir string
	debug     bool

	// flag targets; values reach the config through viper bindings
	listen         string
	storageDriver  string
	sqlitePath     string
	postgresDSN    string
	workers        uint
	queueSize      uint
	blobProvider   string
	blobDir        string
	memoryProvider string
	memoryTarget   string
	memoryModel    string
	eventProvider  string
	eventBrokers   string
	eventAMQPURL   string

	logger *slog.Logger
	level  *slog.LevelVar
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagBlobProvider,
	config.FlagBlobDir,
	config.FlagMemoryProvider,
	config.FlagMemoryTarget,
	config.FlagMemoryModel,
	config.FlagEventProvider,
	config.FlagEventBrokers,
	config.FlagEventAMQPURL,
}

const serveLongDesc string = `Run the mnemo server.

Starts the HTTP API (provider webhook, memory API and the MCP endpoint),
the memory worker pool and the reconciler that re-enqueues messages whose
memory was never recorded.

Settings come from flags, MNEMO_ environment variables, config.toml in the
.mnemo/ directory and defaults, in that order. Changing log.level in
config.toml while the server runs takes effect immediately.

Examples:
  mnemo serve
  mnemo serve --listen :9000 --storage-driver postgres --postgres-dsn postgres://localhost/mnemo
  mnemo serve --memory-provider ollama --memory-model llama3.2`

const serveShortDesc string = "Run the mnemo server"

const serveLogFile = "serve.log"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, v)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)
	config.AddStringFlag(cmd, config.Flags, config.FlagBlobProvider, &cmder.blobProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagBlobDir, &cmder.blobDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryProvider, &cmder.memoryProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryTarget, &cmder.memoryTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryModel, &cmder.memoryModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventProvider, &cmder.eventProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventBrokers, &cmder.eventBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventAMQPURL, &cmder.eventAMQPURL)

	return cmd
}

func (c *serveCommander) run(parent context.Context, v *viper.Viper) error {
	cfg := config.FromViper(v)

	c.level = new(slog.LevelVar)
	c.logger = backend.NewLogger(os.Stdout, c.debug, c.level)
	if backend.IsTerminal(os.Stdout) {
		logFile, err := c.openLogFile()
		if err != nil {
			return err
		}
		defer logFile.Close()
		c.logger = backend.WithMirror(c.logger, logFile, c.debug, c.level)
	}
	if err := c.applyLevel(cfg.Log.Level); err != nil {
		return err
	}
	reconcileInterval, err := time.ParseDuration(cfg.Ingest.ReconcileInterval)
	if err != nil {
		return fmt.Errorf("invalid ingest.reconcile_interval: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := backend.OpenStorage(ctx, cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	blobStore, err := backend.OpenBlob(ctx, cfg, c.configDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	if blobStore != nil {
		defer blobStore.Close()
	} else {
		c.logger.Warn("blob provider is none, media will be recorded without upload")
	}

	inferer, err := backend.OpenInferer(cfg)
	if err != nil {
		return err
	}
	defer inferer.Close()

	publisher, err := backend.OpenPublisher(ctx, cfg, c.logger)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer publisher.Close()

	identities := identity.NewStore(identity.Config{Users: driver, Logger: c.logger})
	rec := recorder.New(recorder.Config{Store: driver, Logger: c.logger})
	searcher := recall.NewSearcher(recall.Config{Users: driver, Memories: driver})

	pool, err := worker.NewPool(&worker.Config{
		Recorder:   rec,
		Inferer:    inferer,
		Media:      driver,
		Publisher:  publisher,
		NumWorkers: cfg.Ingest.Workers,
		QueueSize:  cfg.Ingest.QueueSize,
		Retry:      backend.RetryPolicy(cfg),
		Messages:   driver,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	// Runs after the API has stopped accepting webhooks, draining queued jobs.
	defer pool.Close()

	service, err := ingest.NewService(ingest.Config{
		Identity:  identities,
		Ledger:    ledger.New(ledger.Config{Messages: driver, Logger: c.logger}),
		Media:     media.NewRegistry(media.Config{Media: driver, Blob: blobStore, Logger: c.logger}),
		Recorder:  rec,
		Fetcher:   media.NewFetcher(media.FetcherConfig{Username: cfg.Webhook.AccountSid, Password: cfg.Webhook.AuthToken}),
		Publisher: publisher,
		Queue:     pool,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest service: %w", err)
	}

	reconciler := ingest.NewReconciler(ingest.ReconcilerConfig{
		Messages: driver,
		Queue:    pool,
		Interval: reconcileInterval,
		Logger:   c.logger,
	})

	apiConfig := api.Config{
		ListenAddr: cfg.API.Listen,
		Driver:     driver,
		Ingest:     service,
		Identity:   identities,
		Recorder:   rec,
		Searcher:   searcher,
		Inferer:    inferer,
	}
	if cfg.API.MCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Identity: identities,
			Searcher: searcher,
			Logger:   c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCP = mcpServer.Handler()
	}
	server, err := api.NewServer(apiConfig, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting mnemo",
		"listen", cfg.API.Listen,
		"storage", cfg.Storage.Driver,
		"blob", cfg.Blob.Provider,
		"memory", cfg.Memory.Provider,
		"eventstream", cfg.EventStream.Provider,
		"workers", cfg.Ingest.Workers,
	)

	c.watchConfig(v)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyLevel sets the runtime log level unless --debug pinned it.
func (c *serveCommander) applyLevel(level string) error {
	if c.debug || level == "" {
		return nil
	}
	l, err := config.ParseLevel(level)
	if err != nil {
		return err
	}
	c.level.Set(l)
	return nil
}

// watchConfig reloads log.level whenever config.toml changes.
func (c *serveCommander) watchConfig(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("log.level")
		if err := c.applyLevel(level); err != nil {
			c.logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		c.logger.Info("config reloaded", "file", e.Name, "log_level", c.level.Level().String())
	})
	v.WatchConfig()
}

// openLogFile opens serve.log in the mnemo home directory so that
// interactive runs still leave JSON logs behind.
func (c *serveCommander) openLogFile() (*os.File, error) {
	path, err := dotdir.NewManager().Path(c.configDir, serveLogFile)
	if err != nil {
		return nil, fmt.Errorf("resolving log file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
