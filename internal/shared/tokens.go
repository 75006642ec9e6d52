package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenManager issues and resolves bearer tokens backed by Redis.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
}

type tokenPayload struct {
	UserID   int64     `json:"user_id"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

// TokenClaims describes the identity carried by a resolved token.
type TokenClaims struct {
	UserID   int64
	Email    string
	IssuedAt time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, ttl: ttl, secret: []byte(secret)}
}

// Issue creates a token for the given user and stores it with the configured TTL.
func (tm *TokenManager) Issue(ctx context.Context, userID int64, email string) (string, error) {
	token := tm.generateToken()
	payload := tokenPayload{UserID: userID, Email: email, IssuedAt: time.Now().UTC()}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if err := tm.client.Set(ctx, tm.redisKey(token), data, tm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve looks up a token and returns its claims. Expired or unknown tokens
// resolve to ErrUnauthorized.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (TokenClaims, error) {
	if token == "" {
		return TokenClaims{}, ErrUnauthorized
	}
	data, err := tm.client.Get(ctx, tm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenClaims{}, ErrUnauthorized
		}
		return TokenClaims{}, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return TokenClaims{}, ErrUnauthorized
	}
	return TokenClaims{UserID: payload.UserID, Email: payload.Email, IssuedAt: payload.IssuedAt}, nil
}

// Revoke deletes a token. Revoking an unknown token is not an error.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := tm.client.Del(ctx, tm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

func (tm *TokenManager) redisKey(token string) string {
	return "token:" + token
}

func (tm *TokenManager) generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(tm.secret) > 0 {
		for i := range b {
			b[i] ^= tm.secret[i%len(tm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
