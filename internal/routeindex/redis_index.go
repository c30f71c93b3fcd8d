package routeindex

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisIndex implements Index on Redis sets so several API instances
// share one view of the active routes.
type RedisIndex struct {
	client *redis.Client
	prefix string
	ctx    context.Context
}

func NewRedisIndex(addr, password, prefix string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, prefix: prefix, ctx: context.Background()}
}

func (r *RedisIndex) key(origin, destination string) string {
	return r.prefix + ":" + RouteKey(origin, destination)
}

func (r *RedisIndex) Add(origin, destination, listingID string) {
	_ = r.client.SAdd(r.ctx, r.key(origin, destination), listingID).Err()
}

func (r *RedisIndex) Remove(origin, destination, listingID string) {
	_ = r.client.SRem(r.ctx, r.key(origin, destination), listingID).Err()
}

func (r *RedisIndex) ByRoute(origin, destination string) []string {
	ids, err := r.client.SMembers(r.ctx, r.key(origin, destination)).Result()
	if err != nil {
		return nil
	}
	return ids
}
