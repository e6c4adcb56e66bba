// Package users resolves bearer tokens to validated user identities.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"analyzer-api/internal/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager is the gateway's identity validator: it turns an opaque bearer
// token into a UserMetadata, cache-aside through redis with the read replica
// as the source of truth. Everything behind the auth middleware trusts its
// output completely.
type Manager struct {
	rdb   *sql.DB
	redis *redis.Client
	log   *zap.SugaredLogger
}

func NewManager(rdb *sql.DB, redisClient *redis.Client, log *zap.SugaredLogger) *Manager {
	return &Manager{rdb: rdb, redis: redisClient, log: log}
}

func (u *Manager) GetUserFromToken(ctx context.Context, token string) (*shared.UserMetadata, error) {
	var userMetadata shared.UserMetadata
	userMetadata.APIKey = token

	userInfoCacheKey := fmt.Sprintf("v1:user:token:%s", token)
	userInfoCache, err := u.redis.Get(ctx, userInfoCacheKey).Result()
	switch err {
	case nil:
		err = json.Unmarshal([]byte(userInfoCache), &userMetadata)
		if err == nil {
			return &userMetadata, nil
		}
		u.log.Errorw("Error unmarshalling user info cache", "error", err)
		fallthrough
	default:
		u.log.Debugw("User cache miss", "key", userInfoCacheKey)

		err = u.rdb.QueryRowContext(ctx, `
		SELECT
		user.id,
		user.username,
		COALESCE(user.email, ''),
		user.is_admin
		FROM user
		INNER JOIN api_key ON user.id = api_key.user_id
		WHERE api_key.id = ?
		`, token).Scan(
			&userMetadata.UserID,
			&userMetadata.Username,
			&userMetadata.Email,
			&userMetadata.IsAdmin,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				u.log.Warnw("Invalid bearer token")
				return nil, shared.ErrUnauthorized
			}
			u.log.Errorw("Database error during token validation", "error", err)
			return nil, shared.ErrUnauthorized
		}
		go func() {
			userInfoCache, err := json.Marshal(userMetadata)
			if err != nil {
				u.log.Errorw("Error marshalling user info", "error", err)
				return
			}
			u.redis.Set(context.Background(), userInfoCacheKey, userInfoCache, shared.UserInfoCacheTTL)
		}()
		return &userMetadata, nil
	}
}
