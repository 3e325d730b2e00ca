package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suchimauz/quiet-hours-engine/internal/adapters/in/http"
	"github.com/suchimauz/quiet-hours-engine/internal/adapters/in/rabbitmq"
	"github.com/suchimauz/quiet-hours-engine/internal/adapters/out/cache"
	"github.com/suchimauz/quiet-hours-engine/internal/adapters/out/logger"
	"github.com/suchimauz/quiet-hours-engine/internal/adapters/out/loopback"
	publisher "github.com/suchimauz/quiet-hours-engine/internal/adapters/out/rabbitmq"
	"github.com/suchimauz/quiet-hours-engine/internal/config"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/suchimauz/quiet-hours-engine/internal/core/services/rule_store_service"
	"github.com/suchimauz/quiet-hours-engine/internal/core/services/sync_bridge_service"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Application failed: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (out.LoggerPort, func(), error) {
	// Локально цветной вывод в консоль, в остальных окружениях JSON через zap
	if cfg.IsLocal() {
		consoleLogger, err := logger.NewConsoleLogger(cfg.App.Timezone, cfg.App.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		return consoleLogger, func() {}, nil
	}

	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel, []string{"stdout"})
	if err != nil {
		return nil, nil, err
	}
	return zapLogger, func() { _ = zapLogger.Sync() }, nil
}

func run() error {
	// Загрузка конфигурации
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mainLogger, syncLogger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer syncLogger()
	log := mainLogger.WithModule("Main")

	log.Info("app.starting", out.LogFields{
		"version":         cfg.App.Version,
		"env":             cfg.App.Env,
		"timezone":        cfg.App.Timezone,
		"rabbitmqEnabled": cfg.RabbitMQ.Enabled,
	})

	// Настройка Gin в зависимости от окружения
	if cfg.IsNotLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ядро: шина, цикл диспетчеризации и хранилище правил
	bus := eventbus.New(mainLogger)
	defer bus.Close()
	loop := eventbus.NewLoop(cfg.Sync.LoopSize)

	store := rule_store_service.NewRuleStoreService(bus, mainLogger)
	store.Subscribe()
	defer store.Unsubscribe()

	// Транспорт до бэкенда: RabbitMQ или бэкенд в том же процессе
	var (
		transport out.TransportPort
		backend   *loopback.Backend
	)
	if cfg.RabbitMQ.Enabled {
		commandPublisher, err := publisher.NewCommandPublisher(cfg, mainLogger)
		if err != nil {
			log.Error("app.rabbitmq.init_failed", out.LogFields{
				"error": err.Error(),
			})
			return err
		}
		defer commandPublisher.Close()
		transport = commandPublisher
	} else {
		backend = loopback.NewBackend(nil, mainLogger)
		defer backend.Close()
		transport = backend
	}

	bridge := sync_bridge_service.NewSyncBridgeService(
		store,
		bus,
		transport,
		loop,
		sync_bridge_service.Config{
			RetryAttempts: cfg.Sync.RetryAttempts,
			RetryDelay:    cfg.Sync.RetryDelay,
			AckTimeout:    cfg.Sync.AckTimeout,
		},
		mainLogger,
	)
	bridge.Subscribe()
	defer bridge.Unsubscribe()

	if backend != nil {
		backend.SetPushHandler(bridge)
	}

	// Настройка RabbitMQ слушателя только если он включен
	if cfg.RabbitMQ.Enabled {
		deliveries, err := cache.NewDeliveryCache(cfg, mainLogger)
		if err != nil {
			log.Error("app.cache.init_failed", out.LogFields{
				"error": err.Error(),
			})
			return err
		}

		listener, err := rabbitmq.NewPushListener(bridge, deliveries, cfg, mainLogger)
		if err != nil {
			log.Error("app.rabbitmq.init_failed", out.LogFields{
				"error": err.Error(),
			})
			return err
		}
		if err := listener.Start(ctx); err != nil {
			log.Error("app.rabbitmq.start_failed", out.LogFields{
				"error": err.Error(),
			})
			return err
		}

		defer func() {
			if err := listener.Stop(); err != nil {
				log.Error("app.rabbitmq.stop_failed", out.LogFields{
					"error": err.Error(),
				})
			}
		}()
	}

	// Настройка HTTP сервера
	router := gin.New()
	router.Use(gin.Recovery())
	controller := http.NewRuleController(bus, loop, store, bridge, cfg, mainLogger)
	defer controller.Close()
	controller.RegisterRoutes(router)

	server := &nethttp.Server{
		Addr:              cfg.HTTP.Host + ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return loop.Run(groupCtx)
	})
	group.Go(func() error {
		return bridge.Run(groupCtx)
	})
	group.Go(func() error {
		log.Info("app.http.starting", out.LogFields{
			"host": cfg.HTTP.Host,
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Error("app.http.failed", out.LogFields{
				"error": err.Error(),
			})
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Запрашиваем авторитетный набор правил у бэкенда
	if err := bridge.Start(groupCtx); err != nil {
		log.Error("app.sync.start_failed", out.LogFields{
			"error": err.Error(),
		})
	}

	<-groupCtx.Done()
	log.Info("app.shutdown.initiated", out.LogFields{
		"reason": context.Cause(groupCtx).Error(),
	})

	if err := group.Wait(); err != nil {
		return err
	}

	log.Info("app.shutdown.completed", nil)
	return nil
}
