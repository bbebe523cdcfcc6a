package http_mock_app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	"go_mock_resolver/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type errorBody struct {
	Error string `json:"error"`
}

// readRequestContext 封装 HTTP 请求，请求体超过 maxBody 时返回 *http.MaxBytesError
func readRequestContext(w http.ResponseWriter, r *http.Request, maxBody int64) (*model.RequestContext, error) {
	if maxBody > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	return model.NewRequestContext(r, uuid.NewString(), 0)
}

// writeMockResponse 原样写出流水线结果，未设置 Content-Type 时补默认值
func writeMockResponse(w http.ResponseWriter, resp *model.MockResponse) {
	h := w.Header()
	for k, values := range resp.Header {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	if h.Get("Content-Type") == "" && len(resp.Body) > 0 {
		h.Set("Content-Type", model.DefaultContentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		utils.GetLogger().Debugf("write response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.GetLogger().Errorf("encode response: %v", err)
	}
}

// statusFor 领域错误到 HTTP 状态码
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, model.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateRule):
		return http.StatusConflict
	case errors.Is(err, model.ErrRuleConfigInvalid),
		errors.As(err, &verrs),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr),
		errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrStoreDisabled):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
