package redis

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence records connected sockets per session so every instance sees the same
// live set. Each session key is a sorted set of socket ids scored by expiry time;
// instances refresh their own sockets and a socket that stops being refreshed
// ages out after ttl.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl, now: time.Now}
}

// MarkLive adds or refreshes a socket of the session.
func (p *Presence) MarkLive(ctx context.Context, sessionID, socketID string) error {
	key := p.key(sessionID)
	expires := p.now().Add(p.ttl).UnixMilli()
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expires), Member: socketID})
		pipe.Expire(ctx, key, p.ttl)
		return nil
	})
	return err
}

// Clear removes one socket; the session stays live while others remain.
func (p *Presence) Clear(ctx context.Context, sessionID, socketID string) error {
	key := p.key(sessionID)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, socketID)
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+p.nowScore())
		return nil
	})
	return err
}

func (p *Presence) IsLive(ctx context.Context, sessionID string) (bool, error) {
	n, err := p.client.ZCount(ctx, p.key(sessionID), p.nowScore(), "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LiveSessions returns live session ids sorted.
func (p *Presence) LiveSessions(ctx context.Context) ([]string, error) {
	prefix := p.key("")
	out := make([]string, 0)
	iter := p.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		sessionID := strings.TrimPrefix(iter.Val(), prefix)
		live, err := p.IsLive(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if live {
			out = append(out, sessionID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (p *Presence) nowScore() string {
	return strconv.FormatInt(p.now().UnixMilli(), 10)
}

func (p *Presence) key(sessionID string) string {
	return "order:live:" + sessionID
}
