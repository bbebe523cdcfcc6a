package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	"go_mock_resolver/internal/domain/registry"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/repo"
	"go_mock_resolver/internal/infra/storage"
	"go_mock_resolver/utils"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// RuleManageService 管理接口背后的规则服务，Registry 为准，仓库做镜像
type RuleManageService struct {
	registry  *registry.Registry
	ruleRepo  repo.RuleRepositoryIface // memory 模式下为 nil
	rulesFile string
	writeMu   sync.Mutex // Registry 写入、仓库镜像与回滚作为一个整体串行执行
}

func NewRuleManageService(reg *registry.Registry, ruleRepo repo.RuleRepositoryIface, c *configs.RuleConfig) *RuleManageService {
	return &RuleManageService{
		registry:  reg,
		ruleRepo:  ruleRepo,
		rulesFile: c.Storage.RulesFile,
	}
}

// CreateRule 创建规则，ID 为空时生成 uuid；镜像失败时回滚
func (s *RuleManageService) CreateRule(ctx context.Context, rule *model.MockRule) (*model.MockRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	stored, err := s.registry.Add(rule)
	if err != nil {
		return nil, err
	}
	if s.ruleRepo == nil {
		return stored, nil
	}
	if err := s.ruleRepo.SaveRule(ctx, stored); err != nil {
		if _, rbErr := s.registry.Remove(stored.ID); rbErr != nil {
			utils.GetLogger().Errorf("rollback create %s: %v", stored.ID, rbErr)
		}
		return nil, fmt.Errorf("failed to save rule to repository: %w", err)
	}
	return stored, nil
}

func (s *RuleManageService) UpdateRule(ctx context.Context, rule *model.MockRule) (*model.MockRule, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	prev, err := s.registry.Get(rule.ID)
	if err != nil {
		return nil, err
	}
	stored, err := s.registry.Update(rule)
	if err != nil {
		return nil, err
	}
	if s.ruleRepo == nil {
		return stored, nil
	}
	if err := s.ruleRepo.SaveRule(ctx, stored); err != nil {
		if _, rbErr := s.registry.Update(prev); rbErr != nil {
			utils.GetLogger().Errorf("rollback update %s: %v", rule.ID, rbErr)
		}
		return nil, fmt.Errorf("failed to save rule to repository: %w", err)
	}
	return stored, nil
}

// DeleteRule 文件加载的规则未入库，仓库返回 not found 时忽略
func (s *RuleManageService) DeleteRule(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	removed, err := s.registry.Remove(id)
	if err != nil {
		return err
	}
	if s.ruleRepo == nil {
		return nil
	}
	err = s.ruleRepo.DeleteRule(ctx, id)
	if err == nil || errors.Is(err, model.ErrRuleNotFound) {
		return nil
	}
	if rbErr := s.registry.Load([]*model.MockRule{removed}); rbErr != nil {
		utils.GetLogger().Errorf("rollback delete %s: %v", id, rbErr)
	}
	return fmt.Errorf("failed to delete rule from repository: %w", err)
}

func (s *RuleManageService) GetRule(_ context.Context, id string) (*model.MockRule, error) {
	return s.registry.Get(id)
}

// ListRules 在 Registry 上过滤后分页，page 从 1 开始
func (s *RuleManageService) ListRules(_ context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	all := s.registry.List(filter)
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []*model.MockRule{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// GetStoredRule 读仓库中的持久化版本，规则文件加载的规则不在其中
func (s *RuleManageService) GetStoredRule(ctx context.Context, id string) (*model.MockRule, error) {
	if s.ruleRepo == nil {
		return nil, model.ErrStoreDisabled
	}
	return s.ruleRepo.FindByID(ctx, id)
}

// ListStoredRules 直接分页查询仓库，用于核对 Registry 与持久化数据
func (s *RuleManageService) ListStoredRules(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error) {
	if s.ruleRepo == nil {
		return nil, 0, model.ErrStoreDisabled
	}
	page, pageSize = normalizePage(page, pageSize)
	rules, total, err := s.ruleRepo.ListRulesWithPage(ctx, filter, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	if rules == nil {
		rules = []*model.MockRule{}
	}
	return rules, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// LoadRules 启动时装载：先仓库（保留 Seq），再规则文件（与已有 ID 重复的跳过）
func (s *RuleManageService) LoadRules(ctx context.Context) (int, error) {
	loaded := 0
	if s.ruleRepo != nil {
		rules, err := s.ruleRepo.LoadAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to load rules from repository: %w", err)
		}
		if err := s.registry.Load(rules); err != nil {
			return 0, err
		}
		loaded += len(rules)
	}

	if s.rulesFile == "" {
		return loaded, nil
	}
	rules, err := storage.LoadRuleFile(s.rulesFile)
	if err != nil {
		return loaded, err
	}
	for _, rule := range rules {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if _, err := s.registry.Add(rule); err != nil {
			if errors.Is(err, model.ErrDuplicateRule) {
				utils.GetLogger().Infof("rule %s already loaded, skipping file entry", rule.ID)
				continue
			}
			return loaded, fmt.Errorf("rules file %s: %w", s.rulesFile, err)
		}
		loaded++
	}
	return loaded, nil
}

// IndexedRules 按 L1 索引查候选规则，方法键与通配键合并后按 Seq 排序
func (s *RuleManageService) IndexedRules(ctx context.Context, method, path string) ([]*model.MockRule, error) {
	keys := []string{
		model.BuildL1MatchIndexKey(model.ProtocolHTTP, method, path),
		model.BuildL1MatchIndexKey(model.ProtocolHTTP, "", path),
	}

	seen := map[string]struct{}{}
	out := []*model.MockRule{}
	collect := func(rules []*model.MockRule) {
		for _, r := range rules {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}

	if s.ruleRepo == nil {
		for _, key := range keys {
			var hits []*model.MockRule
			for _, r := range s.registry.List(nil) {
				if slices.Contains(r.IndexKeys(), key) {
					hits = append(hits, r)
				}
			}
			collect(hits)
		}
	} else {
		for _, key := range keys {
			rules, err := s.ruleRepo.GetIndexRule(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to get index %s: %w", key, err)
			}
			collect(rules)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
