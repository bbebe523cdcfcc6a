package storage

import (
	"context"
	"errors"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"
)

// ErrCacheMiss 缓存中不存在该规则
var ErrCacheMiss = errors.New("rule not in cache")

type RuleDBStorageIface interface {
	SaveRuleToDB(ctx context.Context, rule *model.MockRule) error
	GetRuleFromDB(ctx context.Context, ruleID string) (*model.MockRule, error)
	DeleteRuleFromDB(ctx context.Context, ruleID string) error
	BatchGetRules(ctx context.Context, ruleIDs []string) ([]*model.MockRule, error)
	LoadAllRules(ctx context.Context) ([]*model.MockRule, error)

	ListRules(ctx context.Context, filter *model.RuleFilter) ([]*model.MockRule, error)
	ListRulesWithPage(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error)
}

// RedisRuleCacheIface 定义 Redis 缓存操作接口
type RedisRuleCacheIface interface {
	GetRuleFromCache(ctx context.Context, ruleID string) (*model.MockRule, error)
	SetRuleToCache(ctx context.Context, rule *model.MockRule) error
	DeleteRuleFromCache(ctx context.Context, ruleID string) error
	// index

	RemoveFromIndex(ctx context.Context, rule *model.MockRule) error
	GetIndexCache(ctx context.Context, indexKey string) ([]string, error)
	SetIndexCache(ctx context.Context, indexKey string, rule *model.MockRule) error
	UpdateIndexCache(ctx context.Context, rule *model.MockRule) error
}

// OutcomeStorageIface 请求结果历史
type OutcomeStorageIface interface {
	SaveOutcomes(ctx context.Context, outcomes []model.Outcome) error
	ListOutcomes(ctx context.Context, limit int) ([]model.Outcome, error)
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
	PruneKeepLatest(ctx context.Context, keep int) (int64, error)
}
