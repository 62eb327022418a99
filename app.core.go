package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

var _ AppProvider = (*App)(nil)

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	cleanups       []func()
	queueConsumers []func(context.Context) error
}

// OpenBookStorage connects to the configured database and applies
// the migrations when the auto migration is enabled.
func OpenBookStorage(ctx context.Context, config *Config, logger *zap.Logger) (*SQLBookStorage, error) {
	db, err := GetSQLClient(ctx, &config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %s", config.Database.Driver, err)
	}

	if config.Database.AutoMigrate {
		if err = RunMigrations(logger, db.DB, config.Database.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}
	return NewSQLBookStorage(logger, &config.Database, db), nil
}

// NewApp provides an instance of App. The optional change mirror connects to
// redis and boltdb only when enabled.
func NewApp(ctx context.Context, config *Config, logger *zap.Logger) (*App, error) {
	app := &App{logger: logger, config: config}

	storage, err := OpenBookStorage(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	app.cleanups = append(app.cleanups, func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close database", zap.Error(cerr))
		}
	})

	var (
		queue  Queuer
		mirror BookMirror
	)
	if config.Mirror.Enabled {
		queue, mirror, err = app.setupMirror(ctx)
		if err != nil {
			app.Clean()
			return nil, err
		}
	}

	bookService := NewBookService(logger, storage, queue)
	apiService := NewAPIHandler(logger, config, NewStatistics(config), bookService)
	apiService.mirror = mirror

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic,
			ops:    middlewaresOps,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}
	return app, nil
}

// setupMirror connects the redis queues and the bolt mirror then registers its consumer.
func (app *App) setupMirror(ctx context.Context) (Queuer, BookMirror, error) {
	redisClient, err := GetRedisClient(ctx, &app.config.Mirror.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis server: %s", err)
	}
	app.cleanups = append(app.cleanups, func() { _ = redisClient.Close() })

	boltDBClient, err := GetBoltDBClient(&app.config.Mirror.BoltDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to boltDB server: %s", err)
	}
	mirror := NewBoltBookMirror(app.logger, &app.config.Mirror.BoltDB, boltDBClient)
	app.cleanups = append(app.cleanups, func() { _ = mirror.Close() })

	queue := NewRedisQueue(redisClient)
	consumer := NewMirrorConsumer(app.logger, queue, mirror)
	app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
		return consumer.Consume(ctx, CreateQueue, UpdateQueue, DeleteQueue)
	})
	return queue, mirror, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions in reverse order.
func (app *App) Clean() {
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		app.cleanups[i]()
	}
	app.cleanups = nil
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
