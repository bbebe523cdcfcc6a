package recorder

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOutcomeStore struct {
	mu       sync.Mutex
	outcomes []model.Outcome
	nextID   uint
}

func (m *memOutcomeStore) SaveOutcomes(_ context.Context, outcomes []model.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range outcomes {
		m.nextID++
		o.ID = m.nextID
		m.outcomes = append(m.outcomes, o)
	}
	return nil
}

func (m *memOutcomeStore) ListOutcomes(_ context.Context, limit int) ([]model.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Outcome(nil), m.outcomes...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOutcomeStore) PruneBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.Outcome
	for _, o := range m.outcomes {
		if !o.Timestamp.Before(before) {
			kept = append(kept, o)
		}
	}
	n := int64(len(m.outcomes) - len(kept))
	m.outcomes = kept
	return n, nil
}

func (m *memOutcomeStore) PruneKeepLatest(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outcomes) <= keep {
		return 0, nil
	}
	n := int64(len(m.outcomes) - keep)
	m.outcomes = m.outcomes[len(m.outcomes)-keep:]
	return n, nil
}

func (m *memOutcomeStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outcomes)
}

func persistConfig() *configs.RuleConfig {
	cfg := configs.Default()
	cfg.Storage.Driver = configs.DriverSQLite
	cfg.RecorderConfig.Persist = true
	cfg.RecorderConfig.PoolSize = 2
	return cfg
}

func TestAsyncRecorderPersists(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := &memOutcomeStore{}
	rec, cleanup, err := NewAsyncRecorder(persistConfig(), store, logger)
	require.NoError(t, err)

	ruleID := "users"
	rec.Record(model.Outcome{RequestID: "r1", Method: "GET", Path: "/a", MatchedRuleID: &ruleID, StatusCode: 200})
	rec.Record(model.Outcome{RequestID: "r2", Method: "GET", Path: "/b", StatusCode: 404})
	cleanup()

	assert.Equal(t, 2, store.len())
	recent, err := rec.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r2", recent[0].RequestID)

	var resolved int
	for _, e := range hook.AllEntries() {
		if e.Message == "request resolved" {
			resolved++
		}
	}
	assert.Equal(t, 2, resolved)
}

func TestAsyncRecorderWithoutPersist(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &memOutcomeStore{}
	cfg := configs.Default()
	rec, cleanup, err := NewAsyncRecorder(cfg, store, logger)
	require.NoError(t, err)

	rec.Record(model.Outcome{RequestID: "r1"})
	cleanup()

	assert.Equal(t, 0, store.len())
	recent, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestAsyncRecorderDropsWhenOverloaded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg := configs.Default()
	cfg.RecorderConfig.PoolSize = 1
	rec, cleanup, err := NewAsyncRecorder(cfg, nil, logger)
	require.NoError(t, err)
	defer cleanup()

	release := make(chan struct{})
	require.NoError(t, rec.pool.Submit(func() { <-release }))
	rec.Record(model.Outcome{RequestID: "dropped"})
	close(release)

	assert.Equal(t, int64(1), rec.Dropped())
}

func TestRetentionJobRun(t *testing.T) {
	logger, _ := test.NewNullLogger()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := &memOutcomeStore{}
	for i := 0; i < 5; i++ {
		// 两条超过 7 天
		ts := now.AddDate(0, 0, -10+i*2)
		require.NoError(t, store.SaveOutcomes(context.Background(), []model.Outcome{{Timestamp: ts}}))
	}

	cfg := persistConfig()
	cfg.RecorderConfig.Retention = configs.RetentionConfig{Schedule: "@every 1h", MaxAgeDays: 7, MaxRecords: 2}
	job, cleanup, err := NewRetentionJob(cfg, store, logger)
	require.NoError(t, err)
	defer cleanup()
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, store.len())
}

func TestNewRetentionJob(t *testing.T) {
	logger, _ := test.NewNullLogger()

	job, cleanup, err := NewRetentionJob(configs.Default(), &memOutcomeStore{}, logger)
	require.NoError(t, err)
	assert.Nil(t, job)
	cleanup()
	job.Start()

	cfg := persistConfig()
	cfg.RecorderConfig.Retention.Schedule = "not a schedule"
	_, _, err = NewRetentionJob(cfg, &memOutcomeStore{}, logger)
	assert.Error(t, err)

	cfg.RecorderConfig.Retention.Schedule = "*/5 * * * *"
	job, cleanup, err = NewRetentionJob(cfg, &memOutcomeStore{}, logger)
	require.NoError(t, err)
	require.NotNil(t, job)
	job.Start()
	cleanup()
}
