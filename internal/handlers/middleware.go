package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/canteen-orderflow/internal/accounts"
)

const (
	userHeader = "X-User-Id"
	accountKey = "account"
)

// AccountReader resolves caller identities.
type AccountReader interface {
	Get(ctx context.Context, accountID string) (*accounts.Account, error)
}

// RateLimitClient is the subset of the go-redis client used for counting.
type RateLimitClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Identity resolves the trusted caller header against the account directory.
func Identity(accts AccountReader, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(userHeader)
		if id == "" {
			respondMessage(c, http.StatusUnauthorized, "missing caller identity")
			return
		}
		acct, err := accts.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if acct == nil {
			respondMessage(c, http.StatusUnauthorized, "unknown account")
			return
		}
		c.Set(accountKey, acct)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...accounts.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct := caller(c)
		for _, r := range roles {
			if acct != nil && acct.Role == r {
				c.Next()
				return
			}
		}
		respondMessage(c, http.StatusForbidden, "forbidden")
	}
}

// RateLimit allows limit requests per caller per window. Counting failures
// let the request through.
func RateLimit(rdb RateLimitClient, scope string, limit int, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		who := c.ClientIP()
		if acct := caller(c); acct != nil {
			who = acct.AccountID
		}
		key := "rate_limit:" + scope + ":" + who

		current, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit unavailable", "key", key, "error", err)
			c.Next()
			return
		}
		if current == 1 {
			rdb.Expire(ctx, key, window)
		}
		if current > int64(limit) {
			respondMessage(c, http.StatusTooManyRequests, "too many requests")
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) *accounts.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	acct, _ := v.(*accounts.Account)
	return acct
}
