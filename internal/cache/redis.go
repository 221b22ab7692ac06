package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

const (
	keyPrefix  = "paystub:job:"
	defaultTTL = 24 * time.Hour
)

// kv is the subset of the redis client the mirror needs.
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisMirror keeps a JSON copy of finished processing records so other
// processes can read results without reaching the daemon.
type RedisMirror struct {
	client kv
	ttl    time.Duration
	logger *slog.Logger
	closer func() error
}

// NewRedisClient connects to cfg.Addr and verifies the connection.
func NewRedisClient(ctx context.Context, cfg common.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Addr)
	}
	return client, nil
}

// NewRedisMirror wraps an open client. A non-positive ttl means 24h.
func NewRedisMirror(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	m := newMirror(client, ttl, logger)
	m.closer = client.Close
	return m
}

func newMirror(client kv, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisMirror{client: client, ttl: ttl, logger: logger}
}

// Key is the redis key a job's record is stored under.
func Key(id string) string { return keyPrefix + id }

// Record stores terminal records and ignores the rest. It implements
// async.ResultSink.
func (m *RedisMirror) Record(ctx context.Context, req entity.ProcessingRequest) error {
	if !req.Status.IsTerminal() {
		return nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "encode job %s", req.ID)
	}
	if err := m.client.Set(ctx, Key(req.ID), body, m.ttl).Err(); err != nil {
		return errors.Wrapf(err, "mirror job %s", req.ID)
	}
	m.logger.Debug("mirrored job to redis", "job_id", req.ID, "status", req.Status, "ttl", m.ttl.String())
	return nil
}

// Get reads a mirrored record. Missing or expired keys yield common.ErrNotFound.
func (m *RedisMirror) Get(ctx context.Context, id string) (entity.ProcessingRequest, error) {
	var req entity.ProcessingRequest
	body, err := m.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return req, errors.Wrapf(common.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return req, errors.Wrapf(err, "read job %s", id)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.Wrapf(err, "decode job %s", id)
	}
	return req, nil
}

// Close closes the underlying client when the mirror owns it.
func (m *RedisMirror) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
