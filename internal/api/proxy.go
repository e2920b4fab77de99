package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"loginguard/internal/models"
	"loginguard/internal/ratelimit"
)

// NewLoginProxy returns a handler that forwards login requests to the
// upstream application through the login guard. Every forwarded request
// counts as an attempt; a 2xx answer from the upstream resets the caller.
// With key_by form, requests without the login field are keyed by client IP
// so omitting the field does not bypass the guard.
func NewLoginProxy(cfg models.LoginProxyConfig, limiter ratelimit.Limiter, ips *ratelimit.ClientIPs) (http.Handler, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid login upstream: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("Login upstream request failed",
			"upstream", upstream.Host,
			"path", r.URL.Path,
			"error", err)
		writeMiddlewareError(w, http.StatusBadGateway, "Login upstream unavailable", models.ErrorCodeBadGateway)
	}

	var key ratelimit.KeyFunc
	switch cfg.KeyBy {
	case models.LoginKeyByIP:
		key = ratelimit.KeyByClientIP(ips)
	case models.LoginKeyByForm:
		key = ratelimit.FirstKey(ratelimit.KeyByFormValue(cfg.FormField), ratelimit.KeyByClientIP(ips))
	default:
		return nil, fmt.Errorf("unsupported login proxy key: %s", cfg.KeyBy)
	}

	return ratelimit.Guard(limiter, key)(proxy), nil
}
