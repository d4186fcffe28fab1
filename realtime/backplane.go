package realtime

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Backplane carries room broadcasts to every relay instance.
type Backplane interface {
	Publish(ctx context.Context, teamID uint, frame []byte) error
}

// LocalBackplane delivers straight to the in-process hub. It is enough for a
// single instance.
type LocalBackplane struct {
	hub *Hub
}

func NewLocalBackplane(hub *Hub) *LocalBackplane {
	return &LocalBackplane{hub: hub}
}

func (b *LocalBackplane) Publish(_ context.Context, teamID uint, frame []byte) error {
	b.hub.Broadcast(teamID, frame)
	return nil
}

// RedisBackplane publishes each room on its own channel; every instance runs
// a subscriber that feeds its local hub.
type RedisBackplane struct {
	client *redis.Client
	prefix string
}

func NewRedisBackplane(client *redis.Client, prefix string) *RedisBackplane {
	return &RedisBackplane{client: client, prefix: prefix}
}

func (b *RedisBackplane) Publish(ctx context.Context, teamID uint, frame []byte) error {
	return b.client.Publish(ctx, Channel(b.prefix, teamID), frame).Err()
}

// Channel names the pub/sub channel of a room.
func Channel(prefix string, teamID uint) string {
	return prefix + strconv.FormatUint(uint64(teamID), 10)
}

// ParseChannel is the inverse of Channel.
func ParseChannel(prefix, channel string) (uint, bool) {
	if !strings.HasPrefix(channel, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, prefix), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
