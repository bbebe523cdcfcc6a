package recorder

import (
	model "go_mock_resolver/internal/domain/model/mock_rule"

	"github.com/google/wire"
)

var RecorderSet = wire.NewSet(
	NewAsyncRecorder,
	wire.Bind(new(model.OutcomeRecorder), new(*AsyncRecorder)),
	NewRetentionJob,
)
