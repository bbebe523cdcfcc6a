package http_mock_app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	model "go_mock_resolver/internal/domain/model/mock_rule"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RuleRequest 创建与更新规则的请求体，规则语义校验由 MockRule.Compile 完成
type RuleRequest struct {
	ID        string               `json:"id" validate:"omitempty,max=64,excludesall=/?# "`
	Name      string               `json:"name" validate:"required,min=1,max=100"`
	Enabled   *bool                `json:"enabled"`
	Tags      []string             `json:"tags" validate:"omitempty,max=20,dive,required,max=50"`
	Match     model.MatchSpec      `json:"match"`
	Response  model.ResponseSpec   `json:"response"`
	Validator *model.ValidatorSpec `json:"validator,omitempty"`
}

func (req *RuleRequest) Validate() error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	for _, m := range req.Match.Methods {
		if err := validate.Var(strings.ToUpper(m), "oneof=GET POST PUT PATCH DELETE HEAD OPTIONS TRACE CONNECT"); err != nil {
			return badRequest("unsupported method %q", m)
		}
	}
	return nil
}

// ConvertToMockRule enabled 缺省为 true
func (req *RuleRequest) ConvertToMockRule() *model.MockRule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &model.MockRule{
		ID:        req.ID,
		Name:      req.Name,
		Enabled:   enabled,
		Match:     req.Match,
		Response:  req.Response,
		Validator: req.Validator,
		Tags:      req.Tags,
	}
}

// ListRulesQuery GET /rules 的查询参数
type ListRulesQuery struct {
	Tag      string `validate:"omitempty,max=50"`
	Enabled  string `validate:"omitempty,oneof=true false"`
	Path     string `validate:"omitempty,max=255"`
	Source   string `validate:"omitempty,oneof=registry store"`
	Page     int    `validate:"gte=0"`
	PageSize int    `validate:"gte=0,lte=200"`
}

func parseListRulesQuery(r *http.Request) (*ListRulesQuery, error) {
	q := r.URL.Query()
	out := &ListRulesQuery{
		Tag:     q.Get("tag"),
		Enabled: q.Get("enabled"),
		Path:    q.Get("path"),
		Source:  q.Get("source"),
	}
	var err error
	if out.Page, err = atoiDefault(q.Get("page"), 1); err != nil {
		return nil, badRequest("page: %v", err)
	}
	if out.PageSize, err = atoiDefault(q.Get("pageSize"), 20); err != nil {
		return nil, badRequest("pageSize: %v", err)
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return out, nil
}

// FromStore source=store 时绕过 Registry 直接查仓库
func (q *ListRulesQuery) FromStore() bool {
	return q.Source == sourceStore
}

const (
	sourceRegistry = "registry"
	sourceStore    = "store"
)

func parseSource(r *http.Request) (string, error) {
	switch src := r.URL.Query().Get("source"); src {
	case "", sourceRegistry:
		return sourceRegistry, nil
	case sourceStore:
		return sourceStore, nil
	default:
		return "", badRequest("source must be registry or store, got %q", src)
	}
}

func (q *ListRulesQuery) Filter() *model.RuleFilter {
	f := &model.RuleFilter{}
	if q.Tag != "" {
		f.Tag = &q.Tag
	}
	if q.Enabled != "" {
		enabled := q.Enabled == "true"
		f.IsEnabled = &enabled
	}
	if q.Path != "" {
		f.PathContains = &q.Path
	}
	return f
}

func atoiDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

type ListRulesResponse struct {
	Rules    []*model.MockRule `json:"rules"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}
