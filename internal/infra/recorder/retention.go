package recorder

import (
	"context"
	"fmt"
	"time"

	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/storage"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RetentionJob 按 cron 表达式清理过期和超量的请求记录
type RetentionJob struct {
	cfg    configs.RetentionConfig
	store  storage.OutcomeStorageIface
	cron   *cron.Cron
	logger *logrus.Logger
	now    func() time.Time
}

// NewRetentionJob 未持久化或 schedule 为空时返回 nil
func NewRetentionJob(c *configs.RuleConfig, store storage.OutcomeStorageIface, logger *logrus.Logger) (*RetentionJob, func(), error) {
	rc := c.RecorderConfig
	if !rc.Persist || store == nil || rc.Retention.Schedule == "" {
		return nil, func() {}, nil
	}
	job := &RetentionJob{
		cfg:    rc.Retention,
		store:  store,
		cron:   cron.New(),
		logger: logger,
		now:    time.Now,
	}
	if _, err := job.cron.AddFunc(rc.Retention.Schedule, func() {
		if err := job.Run(context.Background()); err != nil {
			logger.Errorf("outcome retention failed: %v", err)
		}
	}); err != nil {
		return nil, nil, fmt.Errorf("invalid retention schedule %q: %w", rc.Retention.Schedule, err)
	}
	return job, job.Stop, nil
}

func (j *RetentionJob) Start() {
	if j == nil {
		return
	}
	j.cron.Start()
}

func (j *RetentionJob) Stop() {
	if j == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Run 先按时间清理，再只保留最新的 MaxRecords 条
func (j *RetentionJob) Run(ctx context.Context) error {
	var byAge, byCount int64
	var err error
	if j.cfg.MaxAgeDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.cfg.MaxAgeDays)
		if byAge, err = j.store.PruneBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("prune by age: %w", err)
		}
	}
	if j.cfg.MaxRecords > 0 {
		if byCount, err = j.store.PruneKeepLatest(ctx, j.cfg.MaxRecords); err != nil {
			return fmt.Errorf("prune by count: %w", err)
		}
	}
	if byAge+byCount > 0 {
		j.logger.Infof("pruned %d outcomes (age=%d count=%d)", byAge+byCount, byAge, byCount)
	}
	return nil
}
