package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"futuresscreener/config"
	"futuresscreener/internal/alert"
	"futuresscreener/internal/api"
	"futuresscreener/internal/binance/collector"
	"futuresscreener/logger"
	"futuresscreener/pkg/storage/cache"
	"futuresscreener/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg conc.WaitGroup
	sinks := []alert.Sink{alert.LogSink{Logger: log.Named("alert")}}

	// optional alert journal
	var journal *postgres.PostgresClient
	if cfg.Postgres.Enabled {
		journal, err = postgres.InitializeAndMigrateAlertRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			log.Error("postgres unavailable, alerts will not be journaled", zap.Error(err))
			journal = nil
		} else {
			defer journal.Close()
			sinks = append(sinks, alert.JournalSink{Journal: journal})
		}
	}

	// optional redis mirror and alert channel
	var mirror *cache.Mirror
	if cfg.Redis.Enabled {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Error("redis unavailable, market mirror disabled", zap.Error(err))
		} else {
			defer client.Close()
			mirror = cache.NewMirror(client, cfg.Redis.KeyPrefix)
			sinks = append(sinks, alert.PublishSink{Publisher: mirror})
		}
	}

	if cfg.Telegram.Enabled {
		sink, err := alert.NewTelegramSink(cfg.TelegramToken(), cfg.Telegram.ChatID, cfg.Telegram.APIEndpoint, cfg.Telegram.Timeout)
		if err != nil {
			log.Error("telegram disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	dispatcher := alert.NewDispatcher(alert.DispatcherConfig{
		QueueSize:     cfg.Alert.QueueSize,
		RatePerSecond: cfg.Alert.RatePerSecond,
		Burst:         cfg.Alert.Burst,
		SendTimeout:   cfg.Telegram.Timeout,
	}, log.Named("alert"), sinks...)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	var opts collector.Options
	if cfg.Alert.Enabled {
		opts.Notifier = dispatcher
	}
	coll, err := collector.New(cfg, log.Named("collector"), opts)
	if err != nil {
		log.Fatal("failed to build collector", zap.Error(err))
	}

	if mirror != nil {
		wg.Go(func() {
			mirror.Run(ctx, cfg.Redis.MirrorInterval, coll.Store().Snapshot, log.Named("mirror"))
		})
	}

	if journal != nil {
		retention := &alert.Retention{
			Journal: journal,
			Keep:    cfg.Postgres.Retention,
			Every:   cfg.Postgres.PruneInterval,
			Logger:  log.Named("retention"),
		}
		wg.Go(func() { retention.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		handler := api.NewHandler(coll.Status, coll.Store())
		if journal != nil {
			handler.WithAlerts(journal)
		}
		router := api.NewRouter(handler, log.Named("http"))
		srv := api.NewServer(cfg.HTTP.Addr, router)

		wg.Go(func() {
			log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", zap.Error(err))
			}
		})
		wg.Go(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		})
	}

	// run collector until SIGINT/SIGTERM
	if err := coll.Run(ctx); err != nil {
		log.Error("collector failed", zap.Error(err))
	}
	stop()
	wg.Wait()
}
