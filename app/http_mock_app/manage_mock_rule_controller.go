package http_mock_app

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"go_mock_resolver/internal/domain/iface"
	"go_mock_resolver/utils"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ManageRuleController /__admin 下的规则管理接口
type ManageRuleController struct {
	RuleManageService iface.RuleService
	History           iface.OutcomeHistory
	startedAt         time.Time
}

func NewManageRuleController(ruleManageService iface.RuleService, history iface.OutcomeHistory) *ManageRuleController {
	return &ManageRuleController{
		RuleManageService: ruleManageService,
		History:           history,
		startedAt:         time.Now(),
	}
}

func (c *ManageRuleController) CreateRule(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRuleRequest(r)
	if err != nil {
		utils.GetLogger().Errorf("read create rule request err: %v", err)
		writeError(w, err)
		return
	}
	rule, err := c.RuleManageService.CreateRule(r.Context(), req.ConvertToMockRule())
	if err != nil {
		utils.GetLogger().Errorf("create mock rule err: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (c *ManageRuleController) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := decodeRuleRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, badRequest("body id %q does not match path id %q", req.ID, id))
		return
	}
	rule := req.ConvertToMockRule()
	rule.ID = id
	updated, err := c.RuleManageService.UpdateRule(r.Context(), rule)
	if err != nil {
		utils.GetLogger().Errorf("update mock rule %s err: %v", id, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (c *ManageRuleController) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.RuleManageService.DeleteRule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRule GET /rules/{id}?source=store 返回仓库中的版本
func (c *ManageRuleController) GetRule(w http.ResponseWriter, r *http.Request) {
	source, err := parseSource(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	get := c.RuleManageService.GetRule
	if source == sourceStore {
		get = c.RuleManageService.GetStoredRule
	}
	rule, err := get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (c *ManageRuleController) ListRules(w http.ResponseWriter, r *http.Request) {
	q, err := parseListRulesQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list := c.RuleManageService.ListRules
	if q.FromStore() {
		list = c.RuleManageService.ListStoredRules
	}
	rules, total, err := list(r.Context(), q.Filter(), q.Page, q.PageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListRulesResponse{Rules: rules, Total: total, Page: q.Page, PageSize: q.PageSize})
}

// IndexedRules GET /rules/index?method=GET&path=/api/users/1
func (c *ManageRuleController) IndexedRules(w http.ResponseWriter, r *http.Request) {
	method, path := r.URL.Query().Get("method"), r.URL.Query().Get("path")
	if path == "" {
		writeError(w, badRequest("path is required"))
		return
	}
	rules, err := c.RuleManageService.IndexedRules(r.Context(), method, path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (c *ManageRuleController) Outcomes(w http.ResponseWriter, r *http.Request) {
	limit, err := atoiDefault(r.URL.Query().Get("limit"), 100)
	if err != nil || limit <= 0 || limit > 1000 {
		writeError(w, badRequest("limit must be between 1 and 1000"))
		return
	}
	outcomes, err := c.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (c *ManageRuleController) Health(w http.ResponseWriter, r *http.Request) {
	_, total, err := c.RuleManageService.ListRules(r.Context(), nil, 1, 1)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rules":  total,
		"uptime": strconv.FormatFloat(time.Since(c.startedAt).Seconds(), 'f', 0, 64) + "s",
	})
}

func decodeRuleRequest(r *http.Request) (*RuleRequest, error) {
	var req RuleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, badRequest("read request body: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// adminMiddleware 记录管理请求并兜底 panic
func adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := utils.GetLogger()
		start := time.Now()
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logrus.Fields{
					"panic": err,
					"stack": string(debug.Stack()),
				}).Error("handle admin request panic")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
		logger.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"latency": time.Since(start).String(),
		}).Info("admin request")
	})
}
