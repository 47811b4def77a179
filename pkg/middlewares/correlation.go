package middlewares

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const DefaultCorrelationHeader = "X-Correlation-ID"

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,40}$`)

// CorrelationMw echoes the caller's correlation ID, or a fresh one, back in
// the response so that host automations can match calls to log lines
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	if headerName == "" {
		headerName = DefaultCorrelationHeader
	}

	return func(next http.Handler) http.Handler {
		return NewCorrelation(headerName, next)
	}
}

func NewCorrelation(headerName string, next http.Handler) *CorrelationMw {
	return &CorrelationMw{headerName: http.CanonicalHeaderKey(headerName), next: next}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set(mw.headerName, mw.correlationID(r))
	mw.next.ServeHTTP(rw, r)
}

func (mw *CorrelationMw) correlationID(r *http.Request) string {
	ids, ok := r.Header[mw.headerName]
	if !ok || len(ids) == 0 {
		return uuid.New().String()
	}

	if correlationIDRegexp.MatchString(ids[0]) {
		return ids[0]
	}

	return "<Bad_Correlation_Id>"
}
