// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package kgqueue persists the durable knowledge-graph processing row for
// each ingested content item and, best-effort, announces it over Redis so
// a downstream worker doesn't have to poll the table.
package kgqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/storage"
)

const (
	statusPending = "pending"
	statusSkipped = "skipped"

	reasonServiceUnavailable = "kg_service_unavailable"

	defaultQueueKey = "kg:processing_queue"
	pingTimeout     = 2 * time.Second
)

// job is the payload pushed to Redis; the table row remains the source of
// truth, this is only a wakeup signal.
type job struct {
	ContentID int64     `json:"content_id"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Notifier enqueues a durable kg_processing_queue row for each ingested
// content item and, when Redis is reachable, pushes a notification job.
type Notifier struct {
	engine *storage.Engine
	redis  *redis.Client
	key    string
}

// New builds a Notifier. redisClient may be nil, in which case every row
// is recorded as skipped with reason kg_service_unavailable.
func New(engine *storage.Engine, redisClient *redis.Client, queueKey string) *Notifier {
	if queueKey == "" {
		queueKey = defaultQueueKey
	}
	return &Notifier{engine: engine, redis: redisClient, key: queueKey}
}

// Enqueue records the queue row for contentID and, if the notification
// broker is reachable, pushes a best-effort wakeup job. A Redis push
// failure never fails the call or changes the row's status; the row is
// the durable record, the push is a convenience.
func (n *Notifier) Enqueue(ctx context.Context, contentID int64) error {
	status, reason := n.classify(ctx)

	if _, err := n.engine.EnqueueKGRow(ctx, contentID, status, reason); err != nil {
		return err
	}

	if status != statusPending {
		return nil
	}

	if err := n.notify(ctx, contentID); err != nil {
		logger.Warnf("kgqueue: best-effort notify failed for content %d: %v", contentID, err)
	}
	return nil
}

func (n *Notifier) classify(ctx context.Context) (status, reason string) {
	if n.redis == nil {
		return statusSkipped, reasonServiceUnavailable
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := n.redis.Ping(pingCtx).Err(); err != nil {
		return statusSkipped, reasonServiceUnavailable
	}
	return statusPending, ""
}

func (n *Notifier) notify(ctx context.Context, contentID int64) error {
	data, err := json.Marshal(job{ContentID: contentID, QueuedAt: time.Now()})
	if err != nil {
		return err
	}
	return n.redis.RPush(ctx, n.key, data).Err()
}
