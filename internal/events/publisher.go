// Package events publishes match-service notifications on Redis pub/sub for
// the gateway's SSE fan-out.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChannelMatchesUpdated is published after a user's match list was rewritten.
const ChannelMatchesUpdated = "EVENT_MATCHES_UPDATED"

// MatchesUpdated is the payload of ChannelMatchesUpdated.
type MatchesUpdated struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	Matches int    `json:"matches"`
}

// Publisher announces domain events. Failures are returned for the caller to
// log; they never undo the write that triggered them.
type Publisher interface {
	MatchesUpdated(ctx context.Context, userID string, matches int) error
}

// RedisPublisher publishes JSON messages on Redis channels.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher returns a publisher on rdb.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// MatchesUpdated implements Publisher.
func (p *RedisPublisher) MatchesUpdated(ctx context.Context, userID string, matches int) error {
	event, err := json.Marshal(MatchesUpdated{
		Type:    ChannelMatchesUpdated,
		UserID:  userID,
		Matches: matches,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ChannelMatchesUpdated, err)
	}
	if err := p.rdb.Publish(ctx, ChannelMatchesUpdated, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelMatchesUpdated, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

// MatchesUpdated implements Publisher.
func (Nop) MatchesUpdated(context.Context, string, int) error { return nil }
