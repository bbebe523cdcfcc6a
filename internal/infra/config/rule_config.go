package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// RuleConfig 服务整体配置
type RuleConfig struct {
	Server               ServerConfig         `yaml:"server"`
	Proxy                ProxyConfig          `yaml:"proxy"`
	JWT                  JWTConfig            `yaml:"jwt"`
	Log                  LogConfig            `yaml:"log"`
	Storage              StorageConfig        `yaml:"storage"`
	DatabaseConfig       DatabaseConfig       `yaml:"database"`
	DatabaseOptionConfig DatabaseOptionConfig `yaml:"databaseConfig"`
	RedisConfig          RedisConfig          `yaml:"redis"`
	RuleRepoConfig       RuleRepoConfig       `yaml:"ruleRepo"`
	RecorderConfig       RecorderConfig       `yaml:"recorder"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes" validate:"gt=0"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ProxyConfig 未命中转发配置，Enabled=false 时直接返回 404
type ProxyConfig struct {
	Enabled bool          `yaml:"enabled"`
	Target  string        `yaml:"target" validate:"required_if=Enabled true,omitempty,url"`
	Timeout time.Duration `yaml:"timeout"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"maxFailures"`
	OpenTimeout time.Duration `yaml:"openTimeout"`
	HalfOpenMax uint32        `yaml:"halfOpenMax"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	File       string `yaml:"file"` // 为空时只输出到 stdout
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver" validate:"oneof=memory mysql sqlite"`
	SQLitePath string `yaml:"sqlitePath" validate:"required_if=Driver sqlite"`
	RulesFile  string `yaml:"rulesFile"`
}

// RuleRepoConfig 封装 ruleRepoImpl 的配置参数
type RuleRepoConfig struct {
	RedisCacheRetryCount  int           `json:"redisCacheRetryCount" yaml:"redisCacheRetryCount"`
	RedisCacheRetryDelay  time.Duration `json:"redisCacheRetryDelay" yaml:"redisCacheRetryDelay"`
	SaveRuleDBRetryCount  int           `json:"saveRuleDBRetryCount" yaml:"saveRuleDBRetryCount"`
	SaveRuleDBRetryDelay  time.Duration `json:"saveRuleDBRetryDelay" yaml:"saveRuleDBRetryDelay"`
	IndexUpdateRetryCount int           `json:"indexUpdateRetryCount" yaml:"indexUpdateRetryCount"`
	IndexUpdateRetryDelay time.Duration `json:"indexUpdateRetryDelay" yaml:"indexUpdateRetryDelay"`
	IndexUpdatePoolSize   int           `json:"indexUpdatePoolSize" yaml:"indexUpdatePoolSize"`
}

type RecorderConfig struct {
	PoolSize  int             `yaml:"poolSize"`
	Persist   bool            `yaml:"persist"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig 请求记录清理任务，Schedule 为空表示不清理
type RetentionConfig struct {
	Schedule   string `yaml:"schedule"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	MaxRecords int    `yaml:"maxRecords" validate:"gte=0"`
}

var validate = validator.New()

// LoadRuleConfig 加载配置
func LoadRuleConfig() (*RuleConfig, error) {
	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadRuleConfigFile(getConfigPath())
}

func LoadRuleConfigFile(configPath string) (*RuleConfig, error) {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseRuleConfig(configFile)
}

func ParseRuleConfig(data []byte) (*RuleConfig, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Default 未在配置文件中出现的字段使用这里的值
func Default() *RuleConfig {
	return &RuleConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    10 << 20,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Proxy: ProxyConfig{
			Timeout: 30 * time.Second,
			Breaker: BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenMax: 1},
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true},
		Storage: StorageConfig{Driver: DriverMemory},
		DatabaseOptionConfig: DatabaseOptionConfig{
			MaxIdleConns:    10,
			MaxOpenConns:    50,
			ConnMaxLifetime: time.Hour,
			LogLevel:        "warn",
			SlowThreshold:   200 * time.Millisecond,
		},
		RedisConfig: RedisConfig{Port: 6379, PoolSize: 20, DialTimeout: 5 * time.Second},
		RuleRepoConfig: RuleRepoConfig{
			RedisCacheRetryCount:  3,
			RedisCacheRetryDelay:  100 * time.Millisecond,
			SaveRuleDBRetryCount:  3,
			SaveRuleDBRetryDelay:  200 * time.Millisecond,
			IndexUpdateRetryCount: 3,
			IndexUpdateRetryDelay: 100 * time.Millisecond,
			IndexUpdatePoolSize:   16,
		},
		RecorderConfig: RecorderConfig{
			PoolSize:  8,
			Retention: RetentionConfig{Schedule: "@hourly", MaxAgeDays: 7, MaxRecords: 100000},
		},
	}
}

// getConfigPath 获取配置文件路径
func getConfigPath() string {
	// 优先使用环境变量
	if path := os.Getenv("RULE_CONFIG_PATH"); path != "" {
		return path
	}

	// 默认配置文件路径
	env := os.Getenv("RULE_ENV")
	if env == "" {
		env = "local"
	}

	return fmt.Sprintf("configs/app.%s.yaml", env)
}

// validate 先做 tag 校验，再做跨 section 的校验
func (c *RuleConfig) validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Storage.Driver == DriverMySQL {
		if err := c.DatabaseConfig.validate(); err != nil {
			return err
		}
		if err := c.DatabaseOptionConfig.validate(); err != nil {
			return err
		}
	}
	if c.Storage.Driver == DriverMemory && c.RecorderConfig.Persist {
		return fmt.Errorf("recorder.persist requires a database storage driver")
	}
	if c.RedisConfig.Enabled && c.Storage.Driver == DriverMemory {
		return fmt.Errorf("redis cache requires a database storage driver")
	}
	if c.RuleRepoConfig.IndexUpdatePoolSize <= 0 {
		return fmt.Errorf("ruleRepo.indexUpdatePoolSize must be positive")
	}
	if c.RecorderConfig.PoolSize <= 0 {
		return fmt.Errorf("recorder.poolSize must be positive")
	}
	return nil
}
