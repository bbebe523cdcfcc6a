package http_mock_app

import (
	"github.com/google/wire"
)

var HTTPSet = wire.NewSet(
	NewMockController,
	NewManageRuleController,
	NewRouter,
)
