package ratelimit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixge/httpsnoop"

	"loginguard/internal/models"
)

// Configured is implemented by limiters that expose their policy.
type Configured interface {
	Config() Config
}

// KeyFunc derives the limiter identifier from a login request. An empty key
// bypasses the guard.
type KeyFunc func(r *http.Request) string

// Guard returns middleware that wraps a login handler with the limiter. Each
// request is recorded as an attempt before the handler runs; denied requests
// receive 429 with a Retry-After header. When the wrapped handler answers
// with a 2xx status the identifier is reset.
func Guard(l Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := key(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := l.RecordAttempt(id)
			if c, ok := l.(Configured); ok && c.Config().MaxAttempts > 0 {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", c.Config().MaxAttempts))
			}
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.RemainingAttempts))

			if !res.Allowed {
				retryAfterSecs := retryAfterSeconds(res)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("Too many login attempts", models.ErrorCodeRateLimitExceeded)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Login attempt rejected",
					"identifier", id,
					"retry_after", retryAfterSecs,
				)
				return
			}

			m := httpsnoop.CaptureMetrics(next, w, r)
			if m.Code >= 200 && m.Code < 300 {
				l.Reset(id)
			}
		})
	}
}

// retryAfterSeconds rounds the result's RetryAfter up to whole seconds, never
// returning less than one.
func retryAfterSeconds(res Result) int {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// KeyByClientIP keys attempts by the requesting client address as resolved
// by ips. A nil resolver uses the connection address.
func KeyByClientIP(ips *ClientIPs) KeyFunc {
	return func(r *http.Request) string {
		ip := ips.ClientIP(r)
		if ip == "" {
			return ""
		}
		return "ip:" + ip
	}
}

// KeyByFormValue keys attempts by a login field, case-folded and trimmed. The
// field is read from a URL-encoded or JSON body, or from the query string when
// there is no body. The body is restored so the wrapped handler still sees it.
func KeyByFormValue(field string) KeyFunc {
	return func(r *http.Request) string {
		v := strings.ToLower(strings.TrimSpace(bodyField(r, field)))
		if v == "" {
			return ""
		}
		return "login:" + v
	}
}

// FirstKey returns the first non-empty key produced by fns.
func FirstKey(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for _, fn := range fns {
			if k := fn(r); k != "" {
				return k
			}
		}
		return ""
	}
}

// maxKeyBodyBytes bounds how much of a login body is inspected for the key.
const maxKeyBodyBytes = 64 << 10

func bodyField(r *http.Request, field string) string {
	if r.Body == nil || r.Body == http.NoBody {
		return r.URL.Query().Get(field)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxKeyBodyBytes+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), rest), rest}
	if err != nil || len(data) > maxKeyBodyBytes {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]interface{}
		if err := json.Unmarshal(data, &body); err != nil {
			return ""
		}
		v, _ := body[field].(string)
		return v
	}

	values, err := url.ParseQuery(string(data))
	if err != nil {
		return ""
	}
	return values.Get(field)
}
