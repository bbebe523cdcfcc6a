package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"
)

// Snapshot 某一时刻的规则集合，发布后不再修改
type Snapshot struct {
	byID    map[string]*model.CompiledRule
	ordered []*model.CompiledRule // 按 Seq 升序
	enabled []*model.CompiledRule
}

func (s *Snapshot) Enabled() []*model.CompiledRule { return s.enabled }

func (s *Snapshot) Len() int { return len(s.ordered) }

func (s *Snapshot) Get(id string) (*model.CompiledRule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Registry owns the in-memory rule set. Readers take lock-free snapshots,
// writers are serialized and publish a fresh snapshot per mutation.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	nextSeq int64
	now     func() time.Time
}

func New() *Registry {
	r := &Registry{now: time.Now}
	r.current.Store(buildSnapshot(nil))
	return r
}

func buildSnapshot(rules []*model.CompiledRule) *Snapshot {
	s := &Snapshot{
		byID:    make(map[string]*model.CompiledRule, len(rules)),
		ordered: rules,
		enabled: make([]*model.CompiledRule, 0, len(rules)),
	}
	for _, r := range rules {
		s.byID[r.ID()] = r
		if r.Rule.Enabled {
			s.enabled = append(s.enabled, r)
		}
	}
	return s
}

func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Add 注册新规则，分配 Seq 与时间戳
func (r *Registry) Add(rule *model.MockRule) (*model.MockRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	if _, exists := snap.byID[rule.ID]; exists {
		return nil, fmt.Errorf("add rule %s: %w", rule.ID, model.ErrDuplicateRule)
	}

	stored := rule.Clone()
	now := r.now()
	stored.Seq = r.nextSeq + 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	compiled, err := stored.Compile()
	if err != nil {
		return nil, err
	}

	next := make([]*model.CompiledRule, len(snap.ordered), len(snap.ordered)+1)
	copy(next, snap.ordered)
	next = append(next, compiled)
	r.nextSeq = stored.Seq
	r.current.Store(buildSnapshot(next))
	return stored.Clone(), nil
}

// Update 整体替换规则，保留原 Seq 与创建时间
func (r *Registry) Update(rule *model.MockRule) (*model.MockRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	old, exists := snap.byID[rule.ID]
	if !exists {
		return nil, fmt.Errorf("update rule %s: %w", rule.ID, model.ErrRuleNotFound)
	}

	stored := rule.Clone()
	stored.Seq = old.Rule.Seq
	stored.CreatedAt = old.Rule.CreatedAt
	stored.UpdatedAt = r.now()
	compiled, err := stored.Compile()
	if err != nil {
		return nil, err
	}

	next := make([]*model.CompiledRule, len(snap.ordered))
	for i, c := range snap.ordered {
		if c.ID() == rule.ID {
			next[i] = compiled
			continue
		}
		next[i] = c
	}
	r.current.Store(buildSnapshot(next))
	return stored.Clone(), nil
}

func (r *Registry) Remove(id string) (*model.MockRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	old, exists := snap.byID[id]
	if !exists {
		return nil, fmt.Errorf("remove rule %s: %w", id, model.ErrRuleNotFound)
	}
	next := make([]*model.CompiledRule, 0, len(snap.ordered))
	for _, c := range snap.ordered {
		if c.ID() != id {
			next = append(next, c)
		}
	}
	r.current.Store(buildSnapshot(next))
	return old.Rule.Clone(), nil
}

// Get 返回副本，调用方修改不会影响已注册规则
func (r *Registry) Get(id string) (*model.MockRule, error) {
	c, ok := r.current.Load().Get(id)
	if !ok {
		return nil, fmt.Errorf("get rule %s: %w", id, model.ErrRuleNotFound)
	}
	return c.Rule.Clone(), nil
}

// List 按注册顺序返回满足过滤条件的规则副本
func (r *Registry) List(filter *model.RuleFilter) []*model.MockRule {
	snap := r.current.Load()
	out := make([]*model.MockRule, 0, len(snap.ordered))
	for _, c := range snap.ordered {
		if filter.Accept(c.Rule) {
			out = append(out, c.Rule.Clone())
		}
	}
	return out
}

// Load 批量装载持久化规则（启动时），保留已有 Seq；任一规则非法则整体失败
func (r *Registry) Load(rules []*model.MockRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	next := make([]*model.CompiledRule, len(snap.ordered), len(snap.ordered)+len(rules))
	copy(next, snap.ordered)
	seen := make(map[string]struct{}, len(snap.ordered)+len(rules))
	for id := range snap.byID {
		seen[id] = struct{}{}
	}

	nextSeq := r.nextSeq
	for _, rule := range rules {
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("load rule %s: %w", rule.ID, model.ErrDuplicateRule)
		}
		seen[rule.ID] = struct{}{}

		stored := rule.Clone()
		if stored.Seq <= 0 {
			stored.Seq = nextSeq + 1
		}
		if stored.Seq > nextSeq {
			nextSeq = stored.Seq
		}
		now := r.now()
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		if stored.UpdatedAt.IsZero() {
			stored.UpdatedAt = stored.CreatedAt
		}
		compiled, err := stored.Compile()
		if err != nil {
			return fmt.Errorf("load rule %s: %w", rule.ID, err)
		}
		next = append(next, compiled)
	}

	sort.SliceStable(next, func(i, j int) bool { return next[i].Seq() < next[j].Seq() })
	r.nextSeq = nextSeq
	r.current.Store(buildSnapshot(next))
	return nil
}
