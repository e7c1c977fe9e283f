package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// OperatorKey is the context key for the acting operator's id.
const OperatorKey contextKey = "operator_id"

// OperatorHeader names the operator acting on a request.
const OperatorHeader = "X-Operator-Id"

// OperatorExtractor stores the X-Operator-Id header (or ?operator= query
// parameter) in the request context. Absent means anonymous.
func OperatorExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := strings.TrimSpace(r.Header.Get(OperatorHeader))
		if op == "" {
			op = strings.TrimSpace(r.URL.Query().Get("operator"))
		}
		if op == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OperatorKey, op)))
	})
}

// GetOperator retrieves the operator id from the request context, or "".
func GetOperator(ctx context.Context) string {
	if v, ok := ctx.Value(OperatorKey).(string); ok {
		return v
	}
	return ""
}
