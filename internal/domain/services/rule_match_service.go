package services

import (
	"context"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	"go_mock_resolver/internal/domain/registry"
)

type RuleMatchService struct {
	registry *registry.Registry
}

func NewRuleMatchService(reg *registry.Registry) *RuleMatchService {
	return &RuleMatchService{registry: reg}
}

// MatchRule 在当前快照的启用规则中选出特异度最高者，同分取 Seq 最小
func (s *RuleMatchService) MatchRule(ctx context.Context, req *model.RequestContext) (*model.MatchResult, bool) {
	var best *model.MatchResult
	for _, rule := range s.registry.Snapshot().Enabled() {
		params, ok := rule.Evaluate(req)
		if !ok {
			continue
		}
		score := rule.Specificity()
		if best == nil || score > best.Score || (score == best.Score && rule.Seq() < best.Rule.Seq()) {
			best = &model.MatchResult{Rule: rule, PathParams: params, Score: score}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}
