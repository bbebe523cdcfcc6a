package services

import (
	"go_mock_resolver/internal/domain/iface"
	model "go_mock_resolver/internal/domain/model/mock_rule"
	"go_mock_resolver/internal/domain/registry"

	"github.com/google/wire"
	"github.com/sirupsen/logrus"
)

var ServiceSet = wire.NewSet(
	registry.New,
	NewRuleMatchService,
	NewValidatorService,
	NewTemplater,
	ProvideResponder,
	NewRuleManageService,
	wire.Bind(new(model.LogSink), new(*logrus.Logger)),
	wire.Bind(new(iface.RuleService), new(*RuleManageService)),
	wire.Bind(new(iface.RequestResolver), new(*Responder)),
)

// ProvideResponder proxy 与 recorder 均可为 nil
func ProvideResponder(
	matcher *RuleMatchService,
	validator *ValidatorService,
	templater *Templater,
	proxy model.ProxyTransport,
	recorder model.OutcomeRecorder,
	logger *logrus.Logger,
) *Responder {
	return NewResponder(matcher, validator, templater,
		WithProxy(proxy),
		WithRecorder(recorder),
		WithLogger(logger),
	)
}
