// File: internal/presence/presence.go
// quiznet server - optional leaderboard/presence cache
//
// A session's score updates are mirrored into a Redis sorted set so a
// separate reporting surface can read a live leaderboard (TopN) without
// touching the session engine's own state. This is
// supplementary to the wire protocol in spec.md §6, never a dependency
// of it: every method here is best-effort and never blocks a session's
// actor goroutine for more than a bounded Redis round trip.

package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "quiznet:leaderboard"

// Cache wraps a Redis client. A nil *Cache is valid and a no-op, so
// callers can wire it in only when Redis is configured.
type Cache struct {
	rdb *redis.Client
}

// Config mirrors the REDIS_* settings in the teacher's configuration
// layer (internal/config).
type Config struct {
	Host string
	Port int
	DB   int
}

// New connects to Redis. Call Close when the server shuts down.
func New(cfg Config) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DB:   cfg.DB,
	})
	return &Cache{rdb: rdb}
}

// Ping verifies connectivity at startup so a misconfigured Redis fails
// fast instead of silently dropping every presence update later.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// BumpScore implements session.PresenceRecorder: it adds delta to
// pseudo's entry in the live leaderboard sorted set.
func (c *Cache) BumpScore(pseudo string, delta int) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.ZIncrBy(ctx, leaderboardKey, float64(delta), pseudo).Err(); err != nil {
		log.Printf("presence: bump score for %s: %v", pseudo, err)
	}
}

// MarkOnline / MarkOffline track logged-in pseudos in the Redis set
// "quiznet:online". Nothing in this server reads that set back.
func (c *Cache) MarkOnline(pseudo string) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.SAdd(ctx, "quiznet:online", pseudo).Err(); err != nil {
		log.Printf("presence: mark online %s: %v", pseudo, err)
	}
}

func (c *Cache) MarkOffline(pseudo string) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.SRem(ctx, "quiznet:online", pseudo).Err(); err != nil {
		log.Printf("presence: mark offline %s: %v", pseudo, err)
	}
}

// TopN returns the top n {pseudo, score} leaderboard entries.
func (c *Cache) TopN(ctx context.Context, n int) ([]Entry, error) {
	if c == nil {
		return nil, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(zs))
	for i, z := range zs {
		entries[i] = Entry{Pseudo: z.Member.(string), Score: int(z.Score)}
	}
	return entries, nil
}

type Entry struct {
	Pseudo string
	Score  int
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
