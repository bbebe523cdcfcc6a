package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go_mock_resolver/internal/domain/services"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/recorder"
	"go_mock_resolver/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App 持有 HTTP 服务与需要在退出时关闭的资源
type App struct {
	config    *configs.RuleConfig
	server    *http.Server
	rules     *services.RuleManageService
	retention *recorder.RetentionJob
	db        *gorm.DB
	redis     *redis.Client
	logger    *logrus.Logger
}

func NewApp(
	c *configs.RuleConfig,
	router *mux.Router,
	rules *services.RuleManageService,
	retention *recorder.RetentionJob,
	db *gorm.DB,
	redisClient *redis.Client,
	logger *logrus.Logger,
) *App {
	return &App{
		config: c,
		server: &http.Server{
			Addr:         c.Server.Addr,
			Handler:      router,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		rules:     rules,
		retention: retention,
		db:        db,
		redis:     redisClient,
		logger:    logger,
	}
}

// ProvideLogger 返回按配置初始化的全局 logger
func ProvideLogger(c *configs.RuleConfig) (*logrus.Logger, error) {
	return utils.InitLogger(c.Log)
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run 装载规则后开始监听，ctx 结束时优雅退出
func (a *App) Run(ctx context.Context) error {
	n, err := a.rules.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	a.logger.Infof("loaded %d rules (storage=%s)", n, a.config.Storage.Driver)

	a.retention.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("mock resolver listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Close 释放数据库与 redis 连接
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warnf("close redis: %v", err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Warnf("close database: %v", err)
			}
		}
	}
}
