package http_mock_app

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go_mock_resolver/internal/domain/iface"
	"go_mock_resolver/internal/domain/services"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/utils"
)

// MockController 承接所有非 /__admin 流量
type MockController struct {
	resolver iface.RequestResolver
	maxBody  int64
}

func NewMockController(resolver iface.RequestResolver, c *configs.RuleConfig) *MockController {
	return &MockController{
		resolver: resolver,
		maxBody:  c.Server.MaxBodyBytes,
	}
}

func (c *MockController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := utils.GetLogger()

	defer func() {
		if err := recover(); err != nil {
			logger.WithFields(map[string]interface{}{
				"panic": err,
				"stack": string(debug.Stack()),
			}).Error("handle request panic")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		}
	}()

	req, err := readRequestContext(w, r, c.maxBody)
	if err != nil {
		logger.Warnf("read request %s %s err: %v", r.Method, r.URL.Path, err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, maxErr)
			return
		}
		writeError(w, badRequest("%v", err))
		return
	}

	resp, err := c.resolver.Handle(r.Context(), req)
	if err != nil {
		// 客户端已断开，响应无人接收
		logger.WithField("request_id", req.ID).Infof("request aborted: %v", err)
		w.WriteHeader(services.StatusClientClosed)
		return
	}
	writeMockResponse(w, resp)
}
