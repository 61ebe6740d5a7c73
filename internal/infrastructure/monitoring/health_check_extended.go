package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddCapacityCheck reports unready once count reaches max. A max of 0 means
// there is no cap and the check always passes.
func (h *HealthChecker) AddCapacityCheck(name string, count func() int, max int, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) (bool, error) {
		if max > 0 {
			if n := count(); n >= max {
				return false, fmt.Errorf("%d of %d connections in use", n, max)
			}
		}
		return true, nil
	}, timeout)
}
