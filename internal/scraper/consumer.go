package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"jobmate/match-service/internal/logger"
	"jobmate/match-service/internal/model"
)

// TopicJobsScraped carries job records published by out-of-process scrapers.
const TopicJobsScraped = "jobs.scraped"

// A message whose ingest failed is retried after ingestRetryDelay, doubling
// up to maxIngestRetryDelay.
const (
	ingestRetryDelay    = time.Second
	maxIngestRetryDelay = 30 * time.Second
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds job records from Kafka into the ingester. A message holds
// either one JSON job or a JSON array of jobs; the message key, if any, names
// the source.
type Consumer struct {
	reader    messageReader
	ingester  Ingester
	log       *zap.Logger
	retryBase time.Duration
}

// NewKafkaConsumer builds a group consumer on topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, ingester Ingester, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return newConsumer(r, ingester, log)
}

func newConsumer(r messageReader, ingester Ingester, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: r, ingester: ingester, log: log, retryBase: ingestRetryDelay}
}

// Run consumes until ctx is cancelled. Undecodable messages are committed and
// skipped. A message whose ingest fails is retried with backoff and the
// consumer does not move past it, so a committed offset never skips a batch.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.ingestWithRetry(ctx, msg); err != nil {
			c.log.Info("consumer stopped with an uncommitted message",
				zap.Int64("offset", msg.Offset), zap.Int("partition", msg.Partition))
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// ingestWithRetry only returns an error once ctx is done.
func (c *Consumer) ingestWithRetry(ctx context.Context, msg kafka.Message) error {
	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("ingest from kafka failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxIngestRetryDelay)
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	jobs, err := DecodeJobs(msg.Value)
	if err != nil {
		c.log.Warn("skipping undecodable message",
			zap.Int64("offset", msg.Offset),
			zap.String("payload", logger.Truncate(string(msg.Value), 200)),
			zap.Error(err),
		)
		return nil
	}
	source := string(msg.Key)
	if source == "" {
		source = "kafka"
	}
	_, err = c.ingester.Ingest(ctx, source, jobs)
	return err
}

// DecodeJobs parses a single job object or an array of them.
func DecodeJobs(data []byte) ([]model.Job, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if data[0] == '[' {
		var jobs []model.Job
		if err := json.Unmarshal(data, &jobs); err != nil {
			return nil, fmt.Errorf("decode job array: %w", err)
		}
		return jobs, nil
	}
	var j model.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return []model.Job{j}, nil
}
