//go:build wireinject
// +build wireinject

package app

import (
	http_mock_app "go_mock_resolver/app/http_mock_app"
	"go_mock_resolver/internal/domain/iface"
	"go_mock_resolver/internal/domain/services"
	"go_mock_resolver/internal/infra/auth"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/proxy"
	"go_mock_resolver/internal/infra/recorder"
	"go_mock_resolver/internal/infra/repo"

	"github.com/google/wire"
)

func InitializeApp(c *configs.RuleConfig) (*App, func(), error) {
	wire.Build(
		ProvideLogger,
		repo.Reposet,
		proxy.NewProxyTransport,
		auth.NewTokenVerifier,
		recorder.RecorderSet,
		wire.Bind(new(iface.OutcomeHistory), new(*recorder.AsyncRecorder)),
		services.ServiceSet,
		http_mock_app.HTTPSet,
		NewApp,
	)
	return nil, nil, nil
}
