package data

import (
	"context"
	"strconv"

	"docflow-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
)

// balanceCache 余额读缓存；写路径只做失效，真实余额以数据库为准
type balanceCache struct {
	rdb *redis.Client
	log *log.Helper
}

func newBalanceCache(rdb *redis.Client, helper *log.Helper) *balanceCache {
	return &balanceCache{rdb: rdb, log: helper}
}

func balanceKey(userID string) string {
	return constants.RedisKeyBalance + userID
}

func (c *balanceCache) get(ctx context.Context, userID string) (int64, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, constants.BalanceCacheTimeout)
	defer cancel()
	v, err := c.rdb.Get(cacheCtx, balanceKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warnf("balance cache get failed: user_id=%s, error=%v", userID, err)
		}
		return 0, false
	}
	balance, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return balance, true
}

func (c *balanceCache) set(userID string, balance int64) {
	if c == nil || c.rdb == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(context.Background(), constants.BalanceCacheTimeout)
	defer cancel()
	if err := c.rdb.Set(cacheCtx, balanceKey(userID), strconv.FormatInt(balance, 10), constants.BalanceCacheTTL).Err(); err != nil {
		c.log.Warnf("balance cache set failed: user_id=%s, error=%v", userID, err)
	}
}

// invalidate 事务提交后调用
func (c *balanceCache) invalidate(userIDs ...string) {
	if c == nil || c.rdb == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, balanceKey(id))
	}
	cacheCtx, cancel := context.WithTimeout(context.Background(), constants.BalanceCacheTimeout)
	defer cancel()
	if err := c.rdb.Del(cacheCtx, keys...).Err(); err != nil {
		c.log.Warnf("balance cache invalidate failed: keys=%v, error=%v", keys, err)
	}
}
