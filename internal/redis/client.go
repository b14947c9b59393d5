package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// RoomChannel is the pub/sub channel for a session's room. The session
// id is the room id; identity is never rebuilt from concatenated role
// strings.
func RoomChannel(sessionID string) string {
	return fmt.Sprintf("room:%s", sessionID)
}

// AstrologerChannel carries incoming-request notifications for one astrologer.
func AstrologerChannel(astrologerID string) string {
	return fmt.Sprintf("astro:%s", astrologerID)
}

// UserChannel carries acceptance and wallet notifications for one user.
func UserChannel(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}
