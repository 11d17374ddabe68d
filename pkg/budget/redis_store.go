package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements Storage against Redis, for deployments that run
// multiple requiemd processes against one shared budget. A hash per tenant
// holds used/window_start/max/window_seconds.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(addr, password string, db int) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func key(tenantID string) string {
	return fmt.Sprintf("budget:%s", tenantID)
}

func (s *RedisStorage) Get(tenantID string) (*BudgetState, bool, error) {
	ctx := context.Background()
	res, err := s.client.HMGet(ctx, key(tenantID), "used", "window_start", "max", "window_seconds").Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis budget get: %w", err)
	}
	if res[0] == nil {
		return nil, false, nil
	}

	var state BudgetState
	var windowStart string
	if _, err := fmt.Sscanf(res[0].(string), "%d", &state.UsedCostUnits); err != nil {
		return nil, false, fmt.Errorf("corrupt used_cost_units: %w", err)
	}
	windowStart = res[1].(string)
	if _, err := fmt.Sscanf(res[2].(string), "%d", &state.Limit.MaxCostUnits); err != nil {
		return nil, false, fmt.Errorf("corrupt max_cost_units: %w", err)
	}
	if _, err := fmt.Sscanf(res[3].(string), "%d", &state.Limit.WindowSeconds); err != nil {
		return nil, false, fmt.Errorf("corrupt window_seconds: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, windowStart)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt window_start: %w", err)
	}
	state.TenantID = tenantID
	state.WindowStart = parsed
	return &state, true, nil
}

func (s *RedisStorage) Set(state *BudgetState) error {
	ctx := context.Background()
	err := s.client.HSet(ctx, key(state.TenantID),
		"used", state.UsedCostUnits,
		"window_start", state.WindowStart.Format(time.RFC3339Nano),
		"max", state.Limit.MaxCostUnits,
		"window_seconds", state.Limit.WindowSeconds,
	).Err()
	if err != nil {
		return fmt.Errorf("redis budget set: %w", err)
	}
	// Self-clean well past any realistic window so a crashed tenant's
	// key does not linger forever.
	s.client.Expire(ctx, key(state.TenantID), 24*time.Hour)
	return nil
}
