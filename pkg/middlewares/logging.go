package middlewares

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
)

// bodies longer than this are logged truncated
const maxLoggedBody = 2048

// boundedBuffer keeps the first maxLoggedBody bytes written to it
type boundedBuffer struct {
	bytes.Buffer
	dropped int
}

func (b *boundedBuffer) keep(p []byte) {
	if room := maxLoggedBody - b.Len(); len(p) > room {
		b.dropped += len(p) - room
		p = p[:room]
	}
	b.Write(p)
}

func (b *boundedBuffer) String() string {
	if b == nil {
		return ""
	}
	if b.dropped > 0 {
		return b.Buffer.String() + "...(truncated)"
	}
	return b.Buffer.String()
}

// statusRecorder remembers the status and size of a response, and its body
// when body is set
type statusRecorder struct {
	http.ResponseWriter

	statusCode int
	size       int
	body       *boundedBuffer
}

func newStatusRecorder(rw http.ResponseWriter, captureBody bool) *statusRecorder {
	rec := &statusRecorder{ResponseWriter: rw, statusCode: http.StatusOK}
	if captureBody {
		rec.body = &boundedBuffer{}
	}
	return rec
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	if rw.body != nil {
		rw.body.keep(b[:size])
	}
	return size, err
}

// teeBody copies what the handler reads of the request into buf
type teeBody struct {
	io.ReadCloser
	buf *boundedBuffer
}

func (t teeBody) Read(b []byte) (int, error) {
	n, err := t.ReadCloser.Read(b)
	t.buf.keep(b[:n])
	return n, err
}

// LoggingMw writes one audit line per request.  With request logging on
// the line also carries the request headers and both bodies.
type LoggingMw struct {
	logRequests bool
	next        http.Handler
}

func NewLoggingMw(reqLogging bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewLogging(reqLogging, next)
	}
}

func NewLogging(reqLogging bool, next http.Handler) *LoggingMw {
	return &LoggingMw{next: next, logRequests: reqLogging}
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	txnID := uuid.New().String()
	startTime := time.Now()

	// must be set before anything writes the body
	rw.Header().Set("X-Txn-ID", txnID)
	r = r.WithContext(logging.WithTxnID(r.Context(), txnID))

	var reqBody *boundedBuffer
	if mw.logRequests && r.Body != nil {
		reqBody = &boundedBuffer{}
		r.Body = teeBody{ReadCloser: r.Body, buf: reqBody}
	}

	rec := newStatusRecorder(rw, mw.logRequests)
	mw.next.ServeHTTP(rec, r)

	fields := logrus.Fields{
		"entrytype": "audit",
		"status":    rec.statusCode,
		"method":    r.Method,
		"route":     routeName(r),
		"path":      r.URL.String(),
		"remote":    r.RemoteAddr,
		"duration":  time.Since(startTime),
		"size":      rec.size,
	}
	if id := rw.Header().Get(DefaultCorrelationHeader); id != "" {
		fields["correlation_id"] = id
	}
	if mw.logRequests {
		fields["request_headers"] = r.Header
		fields["request_body"] = reqBody.String()
		fields["response_body"] = rec.body.String()
	}

	entry := logging.Logger(r.Context()).WithFields(fields)
	msg := http.StatusText(rec.statusCode)

	switch {
	case rec.statusCode >= http.StatusInternalServerError:
		entry.Error(msg)
	case rec.statusCode >= http.StatusBadRequest:
		entry.Warn(msg)
	case r.URL.Path == "/healthz":
		// health probes are noise at info level
		entry.Debug(msg)
	default:
		entry.Info(msg)
	}
}
