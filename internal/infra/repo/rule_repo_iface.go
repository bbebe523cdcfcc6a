package repo

import (
	"context"

	model "go_mock_resolver/internal/domain/model/mock_rule"
)

// RuleRepositoryIface 接口 - 定义数据仓库操作
type RuleRepositoryIface interface {
	model.RuleStore

	FindByID(ctx context.Context, ruleID string) (*model.MockRule, error)
	ListRulesWithPage(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error)
	GetIndexRule(ctx context.Context, indexKey string) ([]*model.MockRule, error)
}
