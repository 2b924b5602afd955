package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCacheMiss is returned by SessionCache.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// ErrStreamSessionNotFound means the session expired, was already consumed,
// or never existed. The client must create a new session.
var ErrStreamSessionNotFound = errors.New("stream session not found")

const streamSessionKeyPrefix = "streamSession:"

// DefaultStreamSessionTTL bounds how long a created session may wait before
// the stream is opened.
const DefaultStreamSessionTTL = time.Hour

// StreamSession holds the parameters handed from session creation to stream
// opening. The raw auth token is never stored, only its fingerprint.
type StreamSession struct {
	ChatID              string     `json:"chatId"`
	UserID              string     `json:"userId"`
	Message             string     `json:"message"`
	AuthTokenHash       string     `json:"authTokenHash"`
	SelectedDocumentIDs []string   `json:"selectedDocumentIds,omitempty"`
	PageFocus           *PageFocus `json:"pageFocus,omitempty"`
}

// RedisCache implements SessionCache on redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return value, err
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// StreamSessionService coordinates the two-phase streaming handoff. A chat
// has at most one live session: creating a new one overwrites any prior
// entry, and a successful stream consumes the entry.
type StreamSessionService struct {
	log   zerolog.Logger
	cache SessionCache
	ttl   time.Duration
}

func NewStreamSessionService(log zerolog.Logger, cache SessionCache, ttl time.Duration) *StreamSessionService {
	if ttl <= 0 {
		ttl = DefaultStreamSessionTTL
	}
	return &StreamSessionService{
		log:   log.With().Str("service", "StreamSessionService").Logger(),
		cache: cache,
		ttl:   ttl,
	}
}

// FingerprintToken computes the one-way fingerprint stored in place of the
// raw auth token.
func FingerprintToken(authToken string) string {
	sum := sha256.Sum256([]byte(authToken))
	return hex.EncodeToString(sum[:])
}

// Create stores the session keyed by chat id and returns that id as the
// session handle.
func (s *StreamSessionService) Create(ctx context.Context, session StreamSession, authToken string) (string, error) {
	session.AuthTokenHash = FingerprintToken(authToken)
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode stream session: %w", err)
	}
	if err := s.cache.Set(ctx, streamSessionKeyPrefix+session.ChatID, payload, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store stream session: %w", err)
	}
	return session.ChatID, nil
}

func (s *StreamSessionService) Get(ctx context.Context, chatID string) (*StreamSession, error) {
	payload, err := s.cache.Get(ctx, streamSessionKeyPrefix+chatID)
	if errors.Is(err, ErrCacheMiss) {
		return nil, ErrStreamSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream session: %w", err)
	}
	var session StreamSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode stream session: %w", err)
	}
	return &session, nil
}

func (s *StreamSessionService) Delete(ctx context.Context, chatID string) error {
	return s.cache.Del(ctx, streamSessionKeyPrefix+chatID)
}
