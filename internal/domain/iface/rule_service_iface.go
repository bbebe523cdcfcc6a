package iface

import (
	"context"

	model "go_mock_resolver/internal/domain/model/mock_rule"
)

// RuleService 规则管理接口
type RuleService interface {
	CreateRule(ctx context.Context, rule *model.MockRule) (*model.MockRule, error)
	UpdateRule(ctx context.Context, rule *model.MockRule) (*model.MockRule, error)
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*model.MockRule, error)
	ListRules(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error)
	// GetStoredRule / ListStoredRules 绕过 Registry 直接读仓库，memory 模式返回 ErrStoreDisabled
	GetStoredRule(ctx context.Context, id string) (*model.MockRule, error)
	ListStoredRules(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error)
	// IndexedRules 按请求方法与路径查 L1 索引下的候选规则
	IndexedRules(ctx context.Context, method, path string) ([]*model.MockRule, error)
	LoadRules(ctx context.Context) (int, error)
}

// RequestResolver 请求解析流水线：匹配、校验、渲染、延迟或转发
type RequestResolver interface {
	Handle(ctx context.Context, req *model.RequestContext) (*model.MockResponse, error)
}

// OutcomeHistory 请求结果查询
type OutcomeHistory interface {
	Recent(ctx context.Context, limit int) ([]model.Outcome, error)
}
