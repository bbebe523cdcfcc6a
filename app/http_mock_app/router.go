package http_mock_app

import (
	"net/http"

	"github.com/gorilla/mux"
)

const AdminPrefix = "/__admin"

// NewRouter /__admin 之外的请求全部交给 MockController
func NewRouter(mock *MockController, admin *ManageRuleController) *mux.Router {
	r := mux.NewRouter()

	a := r.PathPrefix(AdminPrefix).Subrouter()
	a.Use(adminMiddleware)
	a.HandleFunc("/health", admin.Health).Methods(http.MethodGet)
	a.HandleFunc("/rules", admin.CreateRule).Methods(http.MethodPost)
	a.HandleFunc("/rules", admin.ListRules).Methods(http.MethodGet)
	a.HandleFunc("/rules/index", admin.IndexedRules).Methods(http.MethodGet)
	a.HandleFunc("/rules/{id}", admin.GetRule).Methods(http.MethodGet)
	a.HandleFunc("/rules/{id}", admin.UpdateRule).Methods(http.MethodPut)
	a.HandleFunc("/rules/{id}", admin.DeleteRule).Methods(http.MethodDelete)
	a.HandleFunc("/outcomes", admin.Outcomes).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(mock)
	return r
}
