package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruvnet/alienator-sub000/registry"
)

// hop-by-hop headers per RFC 7230 §6.1; never forwarded upstream.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// errAttemptFailed marks a transport-level forwarding failure that is
// safe to retry against a different instance.
type errAttemptFailed struct {
	instance registry.ServiceInstance
	err      error
}

func (e *errAttemptFailed) Error() string {
	return fmt.Sprintf("forward to %s (%s): %v", e.instance.InstanceID, e.instance.Address, e.err)
}

func (e *errAttemptFailed) Unwrap() error { return e.err }

// forwardAttempt sends the request to one instance and, on success,
// copies the upstream response to the client. Upstream error statuses are
// passed through as-is; only transport failures return an error.
func (g *Gateway) forwardAttempt(w http.ResponseWriter, req *http.Request, route Route,
	inst registry.ServiceInstance, body []byte) error {

	timeout := route.Timeout
	if timeout <= 0 {
		timeout = g.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	target := upstreamURL(inst.Address, route.ForwardPath(req.URL.Path), req.URL.RawQuery)
	upReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}

	copyHeaders(upReq.Header, req.Header)
	upReq.Header.Set("X-Forwarded-For", clientIP(req))
	upReq.Header.Set("X-Forwarded-Host", req.Host)

	resp, err := g.client.Do(upReq)
	if err != nil {
		return &errAttemptFailed{instance: inst, err: err}
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Response already committed; nothing to retry.
		g.logger.Debug("response copy interrupted", "instance", inst.InstanceID, "err", err)
	}
	return nil
}

func upstreamURL(address, path, rawQuery string) string {
	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	url := base + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	return url
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}

func clientIP(req *http.Request) string {
	addr := req.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}

// readRequestBody buffers the request body so it can be replayed across
// retry attempts.
func readRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// newProxyClient builds the upstream HTTP client. Per-attempt deadlines
// come from the request context, so the client itself carries none.
func newProxyClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
