package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentcontrol/hub/internal/api/middleware"
)

func TestOperatorExtractor(t *testing.T) {
	var got string
	h := middleware.OperatorExtractor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetOperator(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/escalations", nil)
	req.Header.Set(middleware.OperatorHeader, " op-7 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "op-7" {
		t.Errorf("GetOperator() = %q, want %q", got, "op-7")
	}

	got = "stale"
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/escalations", nil))
	if got != "" {
		t.Errorf("GetOperator() without header = %q, want empty", got)
	}
}

func TestRateLimit(t *testing.T) {
	h := middleware.RateLimit(0.001, 2)(okHandler())

	for i := 0; i < 2; i++ {
		if code := serve(h, httptest.NewRequest(http.MethodPost, "/api/agent-actions", nil)); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, code, http.StatusOK)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/agent-actions", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("over burst: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("over burst: missing Retry-After")
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := middleware.RateLimit(0, 0)(okHandler())
	for i := 0; i < 10; i++ {
		if code := serve(h, httptest.NewRequest(http.MethodPost, "/", nil)); code != http.StatusOK {
			t.Fatalf("status = %d, want %d", code, http.StatusOK)
		}
	}
}
