package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const blacklistPrefix = "token:blacklist:"

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return blacklistPrefix + hex.EncodeToString(sum[:])
}

// BlacklistToken marks a JWT as revoked until its natural expiry.
func BlacklistToken(token string, ttl time.Duration) error {
	if Redis == nil || ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return Redis.Set(ctx, blacklistKey(token), "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT was revoked by logout.
// Redis being unreachable fails open: the token's own expiry still applies.
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := Redis.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false
	}
	return n > 0
}
