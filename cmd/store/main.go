package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"rabiescast/internal/config"
	"rabiescast/internal/database"
	"rabiescast/internal/logging"
	"rabiescast/internal/models"
	"rabiescast/internal/stream"
)

const (
	batchSize  = 10
	blockFor   = 5 * time.Second
	retryDelay = time.Second
)

// alertSink is where consumed alerts end up
type alertSink interface {
	StoreAlerts(ctx context.Context, alerts []models.Alert) error
}

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	consumerName := flag.String("name", "store-1", "consumer name within the group")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	db, err := database.NewDB(ctx, config.GetDatabaseDSN(), logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	consumer := stream.NewConsumer(redisClient, redisCfg.Stream, redisCfg.Group, *consumerName, logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatalf("Failed to prepare stream: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"stream":   redisCfg.Stream,
		"group":    redisCfg.Group,
		"consumer": *consumerName,
	}).Info("Alert store started, reading from Redis stream")

	run(ctx, consumer, db, logger)
	logger.Info("Alert store stopped")
}

// run moves alerts from the stream into the sink until ctx is cancelled.
// Entries left pending by an earlier failure or crash are retried before new
// ones are read.
func run(ctx context.Context, consumer *stream.Consumer, sink alertSink, logger logrus.FieldLogger) {
	backlog := true
	for ctx.Err() == nil {
		var msgs []stream.Message
		var err error
		if backlog {
			var seen int
			msgs, seen, err = consumer.Pending(ctx, batchSize)
			if err == nil && seen == 0 {
				backlog = false
				continue
			}
		} else {
			msgs, err = consumer.Read(ctx, batchSize, blockFor)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WithError(err).Error("Error reading from Redis")
			sleep(ctx, retryDelay)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		if err := storeBatch(ctx, consumer, sink, msgs); err != nil {
			logger.WithError(err).WithField("alerts", len(msgs)).Error("Failed to store alerts")
			backlog = true
			sleep(ctx, retryDelay)
			continue
		}
		logger.WithField("alerts", len(msgs)).Info("Stored alerts")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func storeBatch(ctx context.Context, consumer *stream.Consumer, sink alertSink, msgs []stream.Message) error {
	alerts, ids := split(msgs)
	if err := sink.StoreAlerts(ctx, alerts); err != nil {
		return err
	}
	return consumer.Ack(ctx, ids...)
}

func split(msgs []stream.Message) ([]models.Alert, []string) {
	alerts := make([]models.Alert, len(msgs))
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		alerts[i] = m.Alert
		ids[i] = m.ID
	}
	return alerts, ids
}
