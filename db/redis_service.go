package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"welfare-server-go/config"
	"welfare-server-go/models"
)

const (
	sessionPrefix      = "session:"       // Hash: session:{token} -> username, role
	userSessionsPrefix = "user_sessions:" // Set: user_sessions:{username} -> tokens
)

// RedisService keeps login sessions in Redis
type RedisService struct {
	Client *redis.Client
	log    *zap.Logger
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client, log *zap.Logger) *RedisService {
	return &RedisService{Client: client, log: log}
}

func getSessionKey(token string) string {
	return sessionPrefix + token
}

func getUserSessionsKey(username string) string {
	return userSessionsPrefix + username
}

// SaveSession stores s under its token for ttl
func (s *RedisService) SaveSession(ctx context.Context, sess models.Session, ttl time.Duration) error {
	if sess.Token == "" || sess.Username == "" {
		return errors.New("session token and username cannot be empty")
	}
	key := getSessionKey(sess.Token)
	userKey := getUserSessionsKey(sess.Username)

	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"username": sess.Username,
		"role":     string(sess.Role),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey, sess.Token)
	pipe.Expire(ctx, userKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error("saving session failed", zap.String("username", sess.Username), zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession loads the session for token and slides its expiry forward by ttl
func (s *RedisService) GetSession(ctx context.Context, token string, ttl time.Duration) (models.Session, error) {
	key := getSessionKey(token)
	data, err := s.Client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if len(data) == 0 || data["username"] == "" {
		return models.Session{}, ErrSessionNotFound
	}

	// the user index must live as long as its newest session
	pipe := s.Client.TxPipeline()
	pipe.Expire(ctx, key, ttl)
	pipe.Expire(ctx, getUserSessionsKey(data["username"]), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("refreshing session ttl failed", zap.String("username", data["username"]), zap.Error(err))
	}

	return models.Session{
		Token:    token,
		Username: data["username"],
		Role:     models.Role(data["role"]),
	}, nil
}

// DeleteSession removes the session for token. Removing an unknown token
// is not an error.
func (s *RedisService) DeleteSession(ctx context.Context, token string) error {
	key := getSessionKey(token)
	username, err := s.Client.HGet(ctx, key, "username").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read session: %w", err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Del(ctx, key)
	if username != "" {
		pipe.SRem(ctx, getUserSessionsKey(username), token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions logs username out everywhere and returns how many
// sessions were removed
func (s *RedisService) DeleteUserSessions(ctx context.Context, username string) (int, error) {
	userKey := getUserSessionsKey(username)
	tokens, err := s.Client.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to list sessions of %s: %w", username, err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, getSessionKey(t))
	}
	keys = append(keys, userKey)

	removed, err := s.Client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions of %s: %w", username, err)
	}
	// the set key itself is not a session
	if removed > 0 && len(tokens) > 0 {
		removed--
	}
	return int(removed), nil
}

// Ping checks the connection
func (s *RedisService) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// --- Utility ---

// InitializeRedisClient creates a Redis client and tests the connection
func InitializeRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
