package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/storage"
	"go_mock_resolver/utils"

	"github.com/avast/retry-go/v4"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"
)

// ruleRepoImpl 数据库为准，redis 为可选缓存；写库同步重试，缓存与索引异步刷新
type ruleRepoImpl struct {
	db       storage.RuleDBStorageIface
	cache    storage.RedisRuleCacheIface // 可以为 nil
	config   *configs.RuleRepoConfig
	taskPool *ants.Pool
	sfGroup  singleflight.Group
}

// 确保 ruleRepoImpl 实现了 RuleRepository 接口 (编译时检查)
var _ RuleRepositoryIface = (*ruleRepoImpl)(nil)

// indexUpdateRequest 定义异步索引更新请求的结构体
type indexUpdateRequest struct {
	ctx           context.Context
	rule          *model.MockRule
	operationType indexOperationType
}

type indexOperationType string

const (
	indexOperationTypeUpdate indexOperationType = "update"
	indexOperationTypeRemove indexOperationType = "remove"
)

func NewRuleRepoConfig(c *configs.RuleConfig) *configs.RuleRepoConfig {
	return &c.RuleRepoConfig
}

// NewRuleRepoImpl memory 模式 (db 为 nil) 下不需要仓库，返回 nil
func NewRuleRepoImpl(db storage.RuleDBStorageIface, cache storage.RedisRuleCacheIface, config *configs.RuleRepoConfig) (RuleRepositoryIface, func(), error) {
	if db == nil {
		return nil, func() {}, nil
	}
	taskPool, err := ants.NewPool(config.IndexUpdatePoolSize, ants.WithPanicHandler(func(p any) {
		utils.GetLogger().Errorf("rule repo task panicked: %v", p)
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	repo := &ruleRepoImpl{
		db:       db,
		cache:    cache,
		config:   config,
		taskPool: taskPool,
	}
	return repo, taskPool.Release, nil
}

// LoadAll 启动时装载全部规则，并异步预热缓存
func (r *ruleRepoImpl) LoadAll(ctx context.Context) ([]*model.MockRule, error) {
	data, err, _ := r.sfGroup.Do("load_all", func() (interface{}, error) {
		return r.db.LoadAllRules(ctx)
	})
	if err != nil {
		return nil, err
	}
	rules := data.([]*model.MockRule)
	r.submit(ctx, func(ctx context.Context) {
		for _, rule := range rules {
			r.refreshCache(ctx, rule)
		}
	})
	return rules, nil
}

// SaveRule 保存规则，同时更新缓存和索引
func (r *ruleRepoImpl) SaveRule(ctx context.Context, rule *model.MockRule) error {
	previous, err := r.db.GetRuleFromDB(ctx, rule.ID)
	if err != nil && !errors.Is(err, model.ErrRuleNotFound) {
		return err
	}

	// 1. Save to DB (primary source of truth)
	err = retry.Do(
		func() error {
			return r.db.SaveRuleToDB(ctx, rule)
		},
		retry.Attempts(attempts(r.config.SaveRuleDBRetryCount)),
		retry.Delay(r.config.SaveRuleDBRetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule to db: %w", err)
	}

	// 2. Async update cache and index
	saved := rule.Clone()
	r.submit(ctx, func(ctx context.Context) {
		if previous != nil {
			r.handleIndexUpdate(&indexUpdateRequest{ctx: ctx, rule: previous, operationType: indexOperationTypeRemove})
		}
		r.refreshCache(ctx, saved)
	})
	return nil
}

// DeleteRule 删除规则，同时删除缓存和索引
func (r *ruleRepoImpl) DeleteRule(ctx context.Context, ruleID string) error {
	// 获取规则信息（用于更新索引）
	rule, err := r.db.GetRuleFromDB(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("failed to get rule before delete: %w", err)
	}

	if err := r.db.DeleteRuleFromDB(ctx, ruleID); err != nil {
		return fmt.Errorf("failed to delete rule from db: %w", err)
	}
	r.sfGroup.Forget(findByIDKey(ruleID))
	if r.cache == nil {
		return nil
	}

	r.submit(ctx, func(ctx context.Context) {
		r.handleIndexUpdate(&indexUpdateRequest{ctx: ctx, rule: rule, operationType: indexOperationTypeRemove})
	})

	// 删除缓存，使用重试机制
	err = retry.Do(
		func() error {
			return r.cache.DeleteRuleFromCache(ctx, ruleID)
		},
		retry.Attempts(attempts(r.config.RedisCacheRetryCount)),
		retry.Delay(r.config.RedisCacheRetryDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete rule cache: %w", err)
	}
	return nil
}

// FindByID 根据ID查询规则，先查缓存，缓存未命中则查数据库
func (r *ruleRepoImpl) FindByID(ctx context.Context, id string) (*model.MockRule, error) {
	if r.cache != nil {
		rule, err := r.cache.GetRuleFromCache(ctx, id)
		if err == nil {
			utils.GetLogger().Debugf("rule found in cache: %s", id)
			return rule, nil
		}
		if !errors.Is(err, storage.ErrCacheMiss) {
			utils.GetLogger().Warnf("rule cache read failed, falling back to db: %v", err)
		}
	}

	// 使用 singleflight 防止缓存击穿
	data, err, _ := r.sfGroup.Do(findByIDKey(id), func() (interface{}, error) {
		rule, err := r.db.GetRuleFromDB(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			err = retry.Do(
				func() error {
					return r.cache.SetRuleToCache(ctx, rule)
				},
				retry.Attempts(attempts(r.config.RedisCacheRetryCount)),
				retry.Delay(r.config.RedisCacheRetryDelay),
				retry.Context(ctx),
			)
			if err != nil {
				utils.GetLogger().Warnf("failed to set rule cache for %s: %v", id, err)
			}
		}
		return rule, nil
	})
	if err != nil {
		return nil, err
	}
	return data.(*model.MockRule).Clone(), nil
}

// ListRulesWithPage 列出规则并支持分页
func (r *ruleRepoImpl) ListRulesWithPage(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error) {
	type pageResult struct {
		rules []*model.MockRule
		total int64
	}
	// 使用 singleflight 防止并发查询
	data, err, _ := r.sfGroup.Do(r.getListRulesFilterKey(filter, page, pageSize), func() (interface{}, error) {
		rules, total, err := r.db.ListRulesWithPage(ctx, filter, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list rules from db: %w", err)
		}
		return pageResult{rules, total}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	result := data.(pageResult)
	return result.rules, result.total, nil
}

// GetIndexRule 按 L1 索引取候选规则，结果按 Seq 升序
func (r *ruleRepoImpl) GetIndexRule(ctx context.Context, indexKey string) ([]*model.MockRule, error) {
	var ruleIDs []string
	if r.cache != nil {
		ids, err := r.cache.GetIndexCache(ctx, indexKey)
		if err != nil {
			utils.GetLogger().Warnf("index cache read failed for %s: %v", indexKey, err)
		}
		ruleIDs = ids
	}

	if len(ruleIDs) == 0 {
		// 索引未命中，从数据库中查找
		utils.GetLogger().Debugf("index cache miss for key: %s, now get data from db", indexKey)
		return r.indexFromDB(ctx, indexKey)
	}

	// 尝试从缓存获取规则
	rules := make([]*model.MockRule, 0, len(ruleIDs))
	missRuleIDs := make([]string, 0)
	for _, ruleID := range ruleIDs {
		rule, err := r.cache.GetRuleFromCache(ctx, ruleID)
		if err != nil {
			missRuleIDs = append(missRuleIDs, ruleID)
			continue
		}
		rules = append(rules, rule)
	}

	// 对缓存未命中的规则批量查询DB
	if len(missRuleIDs) > 0 {
		dbRules, err := r.db.BatchGetRules(ctx, missRuleIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to batch get rules from db: %w", err)
		}
		rules = append(rules, dbRules...)
		r.submit(ctx, func(ctx context.Context) {
			for _, rule := range dbRules {
				r.refreshCache(ctx, rule)
			}
		})
	}

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Seq < rules[j].Seq })
	return rules, nil
}

func (r *ruleRepoImpl) indexFromDB(ctx context.Context, indexKey string) ([]*model.MockRule, error) {
	data, err, _ := r.sfGroup.Do("index_"+indexKey, func() (interface{}, error) {
		all, err := r.db.ListRules(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get rules from db: %w", err)
		}
		// 数据库只存首个索引键，这里按全部索引键过滤
		var rules []*model.MockRule
		for _, rule := range all {
			for _, key := range rule.IndexKeys() {
				if key == indexKey {
					rules = append(rules, rule)
					break
				}
			}
		}
		return rules, nil
	})
	if err != nil {
		return nil, err
	}

	rules := data.([]*model.MockRule)
	if len(rules) > 0 {
		r.submit(ctx, func(ctx context.Context) {
			for _, rule := range rules {
				r.refreshCache(ctx, rule)
			}
		})
	}
	return rules, nil
}

// refreshCache 写规则缓存并更新索引
func (r *ruleRepoImpl) refreshCache(ctx context.Context, rule *model.MockRule) {
	if r.cache == nil {
		return
	}
	log := utils.GetLogger()
	err := retry.Do(
		func() error {
			return r.cache.SetRuleToCache(ctx, rule)
		},
		retry.Attempts(attempts(r.config.RedisCacheRetryCount)),
		retry.Delay(r.config.RedisCacheRetryDelay),
		retry.Context(ctx),
	)
	if err != nil {
		log.Warnf("async cache update failed for rule %s: %v", rule.ID, err)
	}

	r.handleIndexUpdate(&indexUpdateRequest{
		ctx:           ctx,
		rule:          rule,
		operationType: indexOperationTypeUpdate,
	})
}

// handleIndexUpdate 处理索引更新请求
func (r *ruleRepoImpl) handleIndexUpdate(req *indexUpdateRequest) {
	if r.cache == nil {
		return
	}
	err := retry.Do(
		func() error {
			switch req.operationType {
			case indexOperationTypeUpdate:
				return r.cache.UpdateIndexCache(req.ctx, req.rule)
			case indexOperationTypeRemove:
				return r.cache.RemoveFromIndex(req.ctx, req.rule)
			default:
				return retry.Unrecoverable(fmt.Errorf("unknown index operation type: %s", req.operationType))
			}
		},
		retry.Attempts(attempts(r.config.IndexUpdateRetryCount)),
		retry.Delay(r.config.IndexUpdateRetryDelay),
		retry.Context(req.ctx),
	)
	if err != nil {
		utils.GetLogger().Errorf("failed to update index: %v", err)
	}
}

// submit 异步任务脱离请求的取消信号；池满时丢弃并告警
func (r *ruleRepoImpl) submit(ctx context.Context, task func(ctx context.Context)) {
	if r.cache == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	if err := r.taskPool.Submit(func() { task(detached) }); err != nil {
		utils.GetLogger().Warnf("failed to submit cache update task: %v", err)
	}
}

// getListRulesFilterKey generates a singleflight key for ListRules based on filter and pagination
func (r *ruleRepoImpl) getListRulesFilterKey(filter *model.RuleFilter, page, pageSize int) string {
	var parts []string

	if filter != nil {
		if filter.RuleID != nil {
			parts = append(parts, fmt.Sprintf("rid:%s", *filter.RuleID))
		}
		if filter.Tag != nil {
			parts = append(parts, fmt.Sprintf("tag:%s", *filter.Tag))
		}
		if filter.IsEnabled != nil {
			parts = append(parts, fmt.Sprintf("enabled:%v", *filter.IsEnabled))
		}
		if filter.PathContains != nil {
			parts = append(parts, fmt.Sprintf("path:%s", *filter.PathContains))
		}
		if filter.L1MatchIndex != nil {
			parts = append(parts, fmt.Sprintf("l1:%s", *filter.L1MatchIndex))
		}
	}

	parts = append(parts, fmt.Sprintf("page:%d", page))
	parts = append(parts, fmt.Sprintf("size:%d", pageSize))

	return fmt.Sprintf("list_rules_%s", strings.Join(parts, "_"))
}

func findByIDKey(id string) string {
	return fmt.Sprintf("find_rule_by_id_%s", id)
}

// attempts retry-go 中 0 表示无限重试，这里至少一次
func attempts(n int) uint {
	if n < 1 {
		return 1
	}
	return uint(n)
}
