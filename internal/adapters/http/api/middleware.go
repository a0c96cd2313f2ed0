package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/metrics"
)

// Error codes written in error bodies, and used as metric error types.
const (
	codeBadRequest        = "bad_request"
	codeUnknownCollection = "unknown_collection"
	codeNotFound          = "not_found"
	codeBulkPartial       = "bulk_partial"
	codeWriteFailed       = "write_failed"
	codeLoadFailed        = "load_failed"
	codeUnavailable       = "unavailable"
	codeInternal          = "internal_error"
)

// MetricsMiddleware wraps a handler to record request and error metrics.
// Failed requests are classified by the error code the handler wrote, so a
// rejected remote write and a failed load are told apart.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		if rec.status < http.StatusBadRequest {
			return
		}
		code := rec.code
		if code == "" {
			code = codeForStatus(rec.status)
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		metrics.RecordErrorByType(code, severity(code))
		metrics.RecordErrorLatency("http", code, durationMs)
		if c := r.PathValue("collection"); types.IsCollection(c) && remoteFailure(code) {
			metrics.RecordErrorByComponent("remote:"+c, code)
		}
	}
}

// codeForStatus covers responses written without an error body, such as
// the mux's own 404 and 405.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return codeNotFound
	case status == http.StatusServiceUnavailable:
		return codeUnavailable
	case status >= http.StatusInternalServerError:
		return codeInternal
	default:
		return codeBadRequest
	}
}

func remoteFailure(code string) bool {
	switch code {
	case codeWriteFailed, codeBulkPartial, codeLoadFailed:
		return true
	}
	return false
}

// severity ranks error codes: the replica diverging from the source is
// worse than a bad request.
func severity(code string) string {
	switch code {
	case codeInternal, codeLoadFailed:
		return "critical"
	case codeWriteFailed, codeBulkPartial, codeUnavailable:
		return "high"
	case codeNotFound, codeUnknownCollection:
		return "low"
	default:
		return "medium"
	}
}

// recorder captures the status and error code of a response.
type recorder struct {
	http.ResponseWriter
	status int
	code   string
}

func (rw *recorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// noteError tags the response with the code of the error body.
func (rw *recorder) noteError(code string) { rw.code = code }

type errorNoter interface{ noteError(code string) }
