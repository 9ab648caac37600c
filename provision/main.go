// Command provision creates the storage the service expects: the relational
// schema, the read-model indexes, the Azure state table and event queue.
// Every step is skipped when its connection setting is empty.
package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"

	"github.com/jpirok/cleanarchitecture/config"
	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/storage"
	"github.com/jpirok/cleanarchitecture/storage/eventsink"
	"github.com/jpirok/cleanarchitecture/storage/gormdb"
	"github.com/jpirok/cleanarchitecture/storage/mongodb"
	"github.com/jpirok/cleanarchitecture/tasks"
)

func main() {
	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("provisioning starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.Postgres.DSN != "" {
		if _, err := gormdb.Open(postgres.Open(cfg.Postgres.DSN), log.StandardLogger(), &domain.Task{}); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		log.Info("postgres schema migrated")
	}

	if cfg.Mongo.URI != "" {
		docs, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		name, err := mongodb.EnsureIndex[tasks.TaskView](ctx, docs, "ownerId", "category", "order")
		if err != nil {
			log.Fatalf("mongo index: %v", err)
		}
		log.WithField("index", name).Info("task view index ready")
		if err := docs.Disconnect(ctx); err != nil {
			log.WithError(err).Warn("mongo disconnect")
		}
	}

	if conn := cfg.Storage.ConnectionString; conn != "" {
		table, err := storage.NewTableClient(conn, cfg.Storage.StateTable)
		if err != nil {
			log.Fatalf("table client: %v", err)
		}
		if err := storage.EnsureTable(ctx, table); err != nil {
			log.Fatalf("create table %s: %v", cfg.Storage.StateTable, err)
		}
		if cfg.EventSink.Driver == eventsink.DriverQueue {
			queue, err := storage.NewQueueClient(conn, cfg.EventSink.Queue)
			if err != nil {
				log.Fatalf("queue client: %v", err)
			}
			if err := storage.EnsureQueue(ctx, queue); err != nil {
				log.Fatalf("create queue %s: %v", cfg.EventSink.Queue, err)
			}
		}
		log.Info("azure storage ready")
	}

	log.Info("provisioning complete")
}
