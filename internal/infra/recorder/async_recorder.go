package recorder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/storage"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

const saveTimeout = 5 * time.Second

// AsyncRecorder 在协程池中记录请求结果，池满时直接丢弃
type AsyncRecorder struct {
	pool    *ants.Pool
	store   storage.OutcomeStorageIface // 为 nil 时只写日志
	logger  *logrus.Logger
	dropped atomic.Int64
}

var _ model.OutcomeRecorder = (*AsyncRecorder)(nil)

func NewAsyncRecorder(c *configs.RuleConfig, store storage.OutcomeStorageIface, logger *logrus.Logger) (*AsyncRecorder, func(), error) {
	if !c.RecorderConfig.Persist {
		store = nil
	}
	pool, err := ants.NewPool(c.RecorderConfig.PoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Errorf("outcome recorder panic: %v", p)
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	r := &AsyncRecorder{pool: pool, store: store, logger: logger}
	return r, r.Close, nil
}

func (r *AsyncRecorder) Record(outcome model.Outcome) {
	err := r.pool.Submit(func() { r.write(outcome) })
	if err != nil {
		n := r.dropped.Add(1)
		if errors.Is(err, ants.ErrPoolOverload) {
			r.logger.Debugf("outcome recorder overloaded, dropped %d outcomes", n)
			return
		}
		r.logger.Warnf("failed to submit outcome: %v", err)
	}
}

func (r *AsyncRecorder) write(outcome model.Outcome) {
	ruleID := ""
	if outcome.MatchedRuleID != nil {
		ruleID = *outcome.MatchedRuleID
	}
	r.logger.WithFields(logrus.Fields{
		"request_id": outcome.RequestID,
		"method":     outcome.Method,
		"path":       outcome.Path,
		"rule_id":    ruleID,
		"status":     outcome.StatusCode,
		"latency_ms": outcome.LatencyMS,
		"client_ip":  outcome.ClientIP,
		"proxied":    outcome.Proxied,
	}).Info("request resolved")

	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.store.SaveOutcomes(ctx, []model.Outcome{outcome}); err != nil {
		r.logger.Errorf("failed to persist outcome %s: %v", outcome.RequestID, err)
	}
}

// Recent 返回最近的请求记录，未开启持久化时为空
func (r *AsyncRecorder) Recent(ctx context.Context, limit int) ([]model.Outcome, error) {
	if r.store == nil {
		return []model.Outcome{}, nil
	}
	return r.store.ListOutcomes(ctx, limit)
}

func (r *AsyncRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close 等待已提交的记录写完
func (r *AsyncRecorder) Close() {
	if err := r.pool.ReleaseTimeout(saveTimeout); err != nil {
		r.logger.Warnf("outcome recorder release: %v", err)
	}
}
