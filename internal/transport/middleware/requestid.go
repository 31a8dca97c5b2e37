package middleware

import (
	"net/http"

	"github.com/formulapm/access-management/pkg/logger"
	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// RequestID installs a trace id on the request: honored from the incoming
// header when present, minted otherwise, echoed on the response, and bound to
// the context logger so every log line downstream carries it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "traceID", traceID)
		w.Header().Set(traceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
