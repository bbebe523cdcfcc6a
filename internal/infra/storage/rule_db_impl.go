package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormRuleStorage struct {
	db *gorm.DB
}

// NewDBClient 按 storage.driver 打开数据库并迁移表结构，memory 模式返回 nil
func NewDBClient(c *configs.RuleConfig, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch c.Storage.Driver {
	case configs.DriverMySQL:
		dialector = mysql.Open(c.DatabaseConfig.GetDSN())
	case configs.DriverSQLite:
		dialector = sqlite.Open(c.Storage.SQLitePath)
	default:
		return nil, nil
	}

	opts := c.DatabaseOptionConfig
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  gormLogLevel(opts.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.MockRule{}, &model.Outcome{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// NewGormRuleStorage memory 模式下没有数据库，返回 nil
func NewGormRuleStorage(db *gorm.DB) RuleDBStorageIface {
	if db == nil {
		return nil
	}
	return &GormRuleStorage{db: db}
}

var _ RuleDBStorageIface = (*GormRuleStorage)(nil)

// SaveRuleToDB 以 id 为键 upsert
func (s *GormRuleStorage) SaveRuleToDB(ctx context.Context, rule *model.MockRule) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(rule).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save rule to db: %w", err)
	}
	return nil
}

func (s *GormRuleStorage) GetRuleFromDB(ctx context.Context, ruleID string) (*model.MockRule, error) {
	rule := &model.MockRule{}
	if err := s.db.WithContext(ctx).First(rule, "id = ?", ruleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get rule %s: %w", ruleID, model.ErrRuleNotFound)
		}
		return nil, fmt.Errorf("failed to get rule from db: %w", err)
	}
	return rule, nil
}

func (s *GormRuleStorage) DeleteRuleFromDB(ctx context.Context, ruleID string) error {
	if err := s.db.WithContext(ctx).Delete(&model.MockRule{}, "id = ?", ruleID).Error; err != nil {
		return fmt.Errorf("failed to delete rule from db: %w", err)
	}
	return nil
}

func (s *GormRuleStorage) BatchGetRules(ctx context.Context, ruleIDs []string) ([]*model.MockRule, error) {
	var rules []*model.MockRule
	if len(ruleIDs) == 0 {
		return rules, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ruleIDs).Order("seq").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to batch get rules from db: %w", err)
	}
	return rules, nil
}

// LoadAllRules 启动装载，按注册序号升序
func (s *GormRuleStorage) LoadAllRules(ctx context.Context) ([]*model.MockRule, error) {
	var rules []*model.MockRule
	if err := s.db.WithContext(ctx).Order("seq").Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load rules from db: %w", err)
	}
	return rules, nil
}

// ListRules 通用的规则列表查询方法，支持 RuleFilter
func (s *GormRuleStorage) ListRules(ctx context.Context, filter *model.RuleFilter) ([]*model.MockRule, error) {
	var rules []*model.MockRule
	if err := s.applyFilter(ctx, filter).Order("seq").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules from db with filter: %w", err)
	}
	return rules, nil
}

func (s *GormRuleStorage) ListRulesWithPage(ctx context.Context, filter *model.RuleFilter, page, pageSize int) ([]*model.MockRule, int64, error) {
	var rules []*model.MockRule
	var total int64
	db := s.applyFilter(ctx, filter)

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rules from db: %w", err)
	}

	if err := db.Order("seq").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rules).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list rules with pagination from db: %w", err)
	}

	return rules, total, nil
}

func (s *GormRuleStorage) applyFilter(ctx context.Context, filter *model.RuleFilter) *gorm.DB {
	db := s.db.WithContext(ctx).Model(&model.MockRule{})
	if filter == nil {
		return db
	}
	if filter.RuleID != nil {
		db = db.Where("id = ?", *filter.RuleID)
	}
	if filter.IsEnabled != nil {
		db = db.Where("enabled = ?", *filter.IsEnabled)
	}
	if filter.Tag != nil {
		// tags 以 JSON 数组存储
		db = db.Where("tags LIKE ?", fmt.Sprintf("%%%q%%", *filter.Tag))
	}
	if filter.PathContains != nil {
		db = db.Where("match_spec LIKE ?", fmt.Sprintf("%%%s%%", *filter.PathContains))
	}
	if filter.L1MatchIndex != nil {
		db = db.Where("l1_match_index = ?", *filter.L1MatchIndex)
	}
	return db
}

type GormOutcomeStorage struct {
	db *gorm.DB
}

func NewGormOutcomeStorage(db *gorm.DB) OutcomeStorageIface {
	if db == nil {
		return nil
	}
	return &GormOutcomeStorage{db: db}
}

var _ OutcomeStorageIface = (*GormOutcomeStorage)(nil)

func (s *GormOutcomeStorage) SaveOutcomes(ctx context.Context, outcomes []model.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(outcomes, 100).Error; err != nil {
		return fmt.Errorf("failed to save outcomes: %w", err)
	}
	return nil
}

// ListOutcomes 最新的在前
func (s *GormOutcomeStorage) ListOutcomes(ctx context.Context, limit int) ([]model.Outcome, error) {
	var outcomes []model.Outcome
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return outcomes, nil
}

func (s *GormOutcomeStorage) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&model.Outcome{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PruneKeepLatest 只保留 id 最大的 keep 条
func (s *GormOutcomeStorage) PruneKeepLatest(ctx context.Context, keep int) (int64, error) {
	var cutoff model.Outcome
	err := s.db.WithContext(ctx).Order("id DESC").Offset(keep).Limit(1).Take(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find prune cutoff: %w", err)
	}
	res := s.db.WithContext(ctx).Where("id <= ?", cutoff.ID).Delete(&model.Outcome{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
