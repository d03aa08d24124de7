// Package stream carries threshold alerts over a Redis stream: the alert job
// publishes them and the store job consumes them as a group member.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"rabiescast/internal/metrics"
	"rabiescast/internal/models"
)

// Client is the subset of the Redis client the publisher uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

// Publisher writes alerts as JSON under the "data" field of each entry.
type Publisher struct {
	client Client
	stream string
	maxLen int64
	logger logrus.FieldLogger
}

// NewPublisher creates a publisher. A positive maxLen trims the stream
// approximately on every add.
func NewPublisher(client Client, stream string, maxLen int64, logger logrus.FieldLogger) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

// Publish adds every alert in order and returns how many were written. It
// stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, alerts []models.Alert) (int, error) {
	for i, a := range alerts {
		data, err := json.Marshal(a)
		if err != nil {
			return i, fmt.Errorf("failed to serialize alert for %s/%s: %w", a.Municipality, a.Barangay, err)
		}

		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]interface{}{
				"data":         string(data),
				"municipality": a.Municipality,
				"level":        a.RiskLevel,
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}

		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return i, fmt.Errorf("failed to publish alert for %s/%s: %w", a.Municipality, a.Barangay, err)
		}
		metrics.AlertsPublished.WithLabelValues(a.RiskLevel).Inc()
	}

	p.logger.WithFields(logrus.Fields{
		"stream": p.stream,
		"alerts": len(alerts),
	}).Info("Published alerts")
	return len(alerts), nil
}

// Recent returns up to count of the newest alerts, newest first. Entries
// that do not decode are skipped.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]models.Alert, error) {
	msgs, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", p.stream, err)
	}

	alerts := make([]models.Alert, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			p.logger.WithField("id", msg.ID).Warn("Stream entry has no data field")
			continue
		}
		var a models.Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			p.logger.WithError(err).WithField("id", msg.ID).Warn("Failed to decode stream entry")
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// GroupClient is the subset of the Redis client a consumer uses.
type GroupClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Message is one decoded stream entry.
type Message struct {
	ID    string
	Alert models.Alert
}

// Consumer reads alerts as a member of a consumer group.
type Consumer struct {
	client GroupClient
	stream string
	group  string
	name   string
	logger logrus.FieldLogger
}

// NewConsumer creates a consumer for stream as name within group.
func NewConsumer(client GroupClient, stream, group, name string, logger logrus.FieldLogger) *Consumer {
	return &Consumer{client: client, stream: stream, group: group, name: name, logger: logger}
}

// EnsureGroup creates the consumer group, and the stream with it, when
// either is missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks up to block for entries never delivered to the group. Entries
// that do not decode are acknowledged and dropped so they are not
// redelivered. A timeout returns no messages and no error.
func (c *Consumer) Read(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	msgs, _, err := c.read(ctx, ">", count, block)
	return msgs, err
}

// Pending returns entries already delivered to this consumer but not yet
// acknowledged. It does not block. seen counts every entry Redis returned,
// including undecodable ones that were dropped, so the backlog is empty only
// when seen is zero.
func (c *Consumer) Pending(ctx context.Context, count int64) (msgs []Message, seen int, err error) {
	return c.read(ctx, "0", count, -1)
}

func (c *Consumer) read(ctx context.Context, start string, count int64, block time.Duration) ([]Message, int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, start},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read stream %s: %w", c.stream, err)
	}

	var out []Message
	var bad []string
	seen := 0
	for _, s := range streams {
		seen += len(s.Messages)
		for _, msg := range s.Messages {
			raw, _ := msg.Values["data"].(string)
			var a models.Alert
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				c.logger.WithError(err).WithField("id", msg.ID).Warn("Dropping undecodable stream entry")
				bad = append(bad, msg.ID)
				continue
			}
			out = append(out, Message{ID: msg.ID, Alert: a})
		}
	}
	if len(bad) > 0 {
		if err := c.Ack(ctx, bad...); err != nil {
			return out, seen, err
		}
	}
	return out, seen, nil
}

// Ack acknowledges processed entries.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack %d entries: %w", len(ids), err)
	}
	return nil
}
