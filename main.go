package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"

	"github.com/jpirok/cleanarchitecture/api"
	"github.com/jpirok/cleanarchitecture/config"
	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/eventsource"
	"github.com/jpirok/cleanarchitecture/mediator"
	"github.com/jpirok/cleanarchitecture/storage"
	"github.com/jpirok/cleanarchitecture/storage/eventsink"
	"github.com/jpirok/cleanarchitecture/storage/gormdb"
	"github.com/jpirok/cleanarchitecture/storage/mongodb"
	"github.com/jpirok/cleanarchitecture/storage/statestore"
	"github.com/jpirok/cleanarchitecture/tasks"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rc *redis.Client
	if cfg.Redis.URL != "" {
		rc = redis.NewClient(redisOptions(cfg.Redis.URL))
		defer rc.Close()
	}

	db, err := gormdb.Open(postgres.Open(cfg.Postgres.DSN), logger, &domain.Task{})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	docs, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatalf("mongo: %v", err)
	}

	cache, closeCache, err := openStateStore(ctx, cfg, rc)
	if err != nil {
		log.Fatalf("state store: %v", err)
	}
	defer closeCache()

	sink, err := eventsink.Open(ctx, eventsink.Config{
		Driver:                  cfg.EventSink.Driver,
		StorageConnectionString: cfg.Storage.ConnectionString,
		Queue:                   cfg.EventSink.Queue,
		Redis:                   redisCmdable(rc),
		KafkaBrokers:            cfg.Kafka.Brokers,
		RabbitURL:               cfg.Rabbit.URL,
		RabbitExchange:          cfg.Rabbit.Exchange,
	}, logger)
	if err != nil {
		log.Fatalf("event sink: %v", err)
	}

	m := mediator.New(mediator.DefaultBehaviors(logger, validator.New())...)
	events, err := eventsource.New(m, sink, logger, eventsource.Options{
		AppName:       cfg.AppName,
		SlowThreshold: cfg.SlowEventThreshold,
		Registerer:    reg,
	})
	if err != nil {
		log.Fatalf("event source: %v", err)
	}
	db.WithEvents(events)

	svc := tasks.NewService(tasks.Options{
		Units:    func() tasks.UnitOfWork { return db.Session() },
		Tasks:    gormdb.NewRepository[domain.Task](db),
		Views:    mongodb.NewQueryRepository[tasks.TaskView](docs),
		Writer:   mongodb.NewWriter[tasks.TaskView](docs),
		Cache:    cache,
		CacheTTL: cfg.StateStore.TTL,
		Logger:   logger,
	})
	if err := tasks.Register(m, svc); err != nil {
		log.Fatalf("tasks: %v", err)
	}

	auth, err := newAuth(cfg, logger)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	var deduper api.Deduper
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, cfg.Idempotency.TTL)
	}

	health := api.NewHealthChecks(0).
		Add("postgres", db.Ping).
		Add("mongo", docs.Ping)
	if rc != nil {
		health.Add("redis", func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}

	e := echo.New()
	e.HideBanner = true
	api.UseWebHosting(e, reg)
	api.MapWebHosting(e, reg, health)
	api.Register(e, m, auth, deduper, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()
	logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "app": cfg.AppName}).Info("listening")

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if err := sink.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("event sink close")
	}
	if err := docs.Disconnect(shutdownCtx); err != nil {
		logger.WithError(err).Warn("mongo disconnect")
	}
}

// redisOptions accepts both redis:// URLs and the Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}

func redisCmdable(rc *redis.Client) redis.Cmdable {
	if rc == nil {
		return nil
	}
	return rc
}

func openStateStore(ctx context.Context, cfg *config.Config, rc *redis.Client) (statestore.Store[[]tasks.TaskView], func(), error) {
	switch cfg.StateStore.Driver {
	case "redis":
		return statestore.NewRedisStore[[]tasks.TaskView](rc, cfg.AppName+":state:"), func() {}, nil
	case "table":
		client, err := storage.NewTableClient(cfg.Storage.ConnectionString, cfg.Storage.StateTable)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.EnsureTable(ctx, client); err != nil {
			return nil, nil, err
		}
		return statestore.NewTableStore[[]tasks.TaskView](client, "tasks"), func() {}, nil
	default:
		s := statestore.NewMemoryStore[[]tasks.TaskView]()
		return s, s.Close, nil
	}
}

func newAuth(cfg *config.Config, logger *log.Logger) (*api.Auth, error) {
	ac := api.AuthConfig{
		Audience:    cfg.Auth.Audience,
		Domain:      cfg.Auth.Domain,
		TestSecret:  cfg.Auth.TestSecret,
		KeyCacheTTL: cfg.Auth.KeyCacheTTL,
	}
	if ac.TestSecret != "" {
		logger.Warn("authenticating with the shared test secret")
		return api.NewAuth(ac, nil), nil
	}
	jwks, err := api.FetchJWKS(ac.Domain, logger)
	if err != nil {
		return nil, err
	}
	return api.NewAuth(ac, jwks), nil
}
