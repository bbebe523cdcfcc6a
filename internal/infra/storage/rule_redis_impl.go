package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/utils"

	"github.com/go-redis/redis/v8"
)

const (
	ruleKeyPrefix  = "mock_rule:"       // Redis Key 前缀
	indexKeyPrefix = "mock_rule_index:" // 有序集合，score 为 Seq
)

type redisRuleStorageImpl struct {
	redisClient *redis.Client
}

// NewRedisClient redis.enabled=false 时返回 nil
func NewRedisClient(c *configs.RuleConfig) (*redis.Client, error) {
	rc := c.RedisConfig
	if !rc.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Password,
		DB:           rc.Database,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		MaxRetries:   rc.MaxRetries,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
		PoolTimeout:  rc.PoolTimeout,
		IdleTimeout:  rc.IdleTimeout,
	})

	// 测试连接是否成功
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	utils.GetLogger().Infof("connected to redis at %s", rc.Addr())
	return client, nil
}

func NewRedisRuleCache(redisClient *redis.Client) RedisRuleCacheIface {
	if redisClient == nil {
		return nil
	}
	return &redisRuleStorageImpl{
		redisClient: redisClient,
	}
}

var _ RedisRuleCacheIface = (*redisRuleStorageImpl)(nil)

// GetIndexCache 返回索引中的规则 ID，按 Seq 升序
func (r *redisRuleStorageImpl) GetIndexCache(ctx context.Context, indexKey string) ([]string, error) {
	utils.GetLogger().Debugf("Getting index members for key: %s", indexKey)
	members, err := r.redisClient.ZRange(ctx, indexKeyPrefix+indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get index members: %w", err)
	}
	return members, nil
}

// SetIndexCache adds a rule ID to the index with its seq as score
func (r *redisRuleStorageImpl) SetIndexCache(ctx context.Context, indexKey string, rule *model.MockRule) error {
	err := r.redisClient.ZAdd(ctx, indexKeyPrefix+indexKey, &redis.Z{
		Score:  float64(rule.Seq),
		Member: rule.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add rule to index: %w", err)
	}
	return nil
}

// UpdateIndexCache 一个规则按方法写入多个索引
func (r *redisRuleStorageImpl) UpdateIndexCache(ctx context.Context, rule *model.MockRule) error {
	for _, indexKey := range rule.IndexKeys() {
		if err := r.SetIndexCache(ctx, indexKey, rule); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFromIndex removes a rule from all of its indexes
func (r *redisRuleStorageImpl) RemoveFromIndex(ctx context.Context, rule *model.MockRule) error {
	pipe := r.redisClient.TxPipeline()
	for _, indexKey := range rule.IndexKeys() {
		pipe.ZRem(ctx, indexKeyPrefix+indexKey, rule.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove rule from index: %w", err)
	}
	return nil
}

func (r *redisRuleStorageImpl) SetRuleToCache(ctx context.Context, rule *model.MockRule) error {
	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule to JSON: %w", err)
	}

	err = r.redisClient.Set(ctx, ruleKeyPrefix+rule.ID, ruleJSON, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set rule to redis: %w", err)
	}
	return nil
}

// DeleteRuleFromCache deletes a rule from Redis cache by its ID
func (r *redisRuleStorageImpl) DeleteRuleFromCache(ctx context.Context, ruleID string) error {
	err := r.redisClient.Del(ctx, ruleKeyPrefix+ruleID).Err()
	if err != nil {
		return fmt.Errorf("failed to delete rule from redis: %w", err)
	}
	return nil
}

// GetRuleFromCache 未命中时返回 ErrCacheMiss
func (r *redisRuleStorageImpl) GetRuleFromCache(ctx context.Context, ruleID string) (*model.MockRule, error) {
	ruleJSON, err := r.redisClient.Get(ctx, ruleKeyPrefix+ruleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrCacheMiss)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get rule from redis: %w", err)
	}

	rule := &model.MockRule{}
	if err := json.Unmarshal(ruleJSON, rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule from JSON: %w", err)
	}
	return rule, nil
}
