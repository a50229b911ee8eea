// Package search signals the downstream search indexer that a movie changed.
// Signals are best effort: callers log failures and carry on.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notifier kinds accepted by New.
const (
	KindSQL   = "sql"
	KindRedis = "redis"
	KindNone  = "none"
)

// DefaultRedisKey is the list the Redis notifier pushes to.
const DefaultRedisKey = "cinesync:search:movies"

type Notifier interface {
	Notify(ctx context.Context, movieID uuid.UUID, reason string) error
}

// SQLNotifier calls the database's enqueue_movie_search function.
type SQLNotifier struct {
	db *sql.DB
}

func NewSQLNotifier(db *sql.DB) *SQLNotifier {
	return &SQLNotifier{db: db}
}

func (n *SQLNotifier) Notify(ctx context.Context, movieID uuid.UUID, reason string) error {
	if _, err := n.db.ExecContext(ctx, `SELECT enqueue_movie_search($1, $2)`, movieID, reason); err != nil {
		return fmt.Errorf("enqueue_movie_search: %w", err)
	}
	return nil
}

// ListPusher is the part of a Redis client the notifier uses.
type ListPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Event is the JSON message pushed to Redis.
type Event struct {
	MovieID uuid.UUID `json:"movie_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// RedisNotifier pushes one Event per change onto a Redis list.
type RedisNotifier struct {
	client ListPusher
	key    string
	now    func() time.Time
}

func NewRedisNotifier(client ListPusher, key string) *RedisNotifier {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisNotifier{client: client, key: key, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, movieID uuid.UUID, reason string) error {
	data, err := json.Marshal(Event{MovieID: movieID, Reason: reason, At: n.now().UTC()})
	if err != nil {
		return err
	}
	if err := n.client.LPush(ctx, n.key, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", n.key, err)
	}
	return nil
}

type Noop struct{}

func (Noop) Notify(context.Context, uuid.UUID, string) error { return nil }

// New picks a notifier by kind. An empty kind means "sql".
func New(kind string, db *sql.DB, rdb ListPusher, redisKey string) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindSQL:
		return NewSQLNotifier(db), nil
	case KindRedis:
		if rdb == nil {
			return nil, fmt.Errorf("search notifier %q needs a redis client", kind)
		}
		return NewRedisNotifier(rdb, redisKey), nil
	case KindNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown search notifier %q", kind)
	}
}
