// Request dispatch for the restspy engine.

package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/double"
	"github.com/dmrschmidt/RestSpy/pkg/httputil"
	"github.com/dmrschmidt/RestSpy/pkg/metrics"
	"github.com/dmrschmidt/RestSpy/pkg/response"
	"github.com/dmrschmidt/RestSpy/pkg/spylog"
)

// MaxRequestBodySize caps the request bodies the dispatcher reads (1MB).
const MaxRequestBodySize = 1 << 20

// MaxUpstreamBodySize caps the upstream answer bodies proxies buffer (10MB).
const MaxUpstreamBodySize = 10 << 20

// Handler serves one port: control-plane paths go to the control API,
// everything else is matched against the registered doubles.
type Handler struct {
	port      int
	log       *slog.Logger
	collector *metrics.Collector
	upstream  *http.Client
	spy       *spylog.Store

	// mu is the single serialization point for the registry, which is
	// itself unsynchronized. Control mutations take the write lock,
	// dispatch lookups the read lock.
	mu      sync.RWMutex
	doubles *double.Registry
}

// NewHandler builds a handler for port. The spy store, collector, and
// upstream client are shared with the owning Server.
func NewHandler(port int, spy *spylog.Store, collector *metrics.Collector, upstream *http.Client, log *slog.Logger) *Handler {
	return &Handler{
		port:      port,
		log:       log,
		collector: collector,
		upstream:  upstream,
		spy:       spy,
		doubles:   double.NewRegistry(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isControlPath(r.URL.Path) {
		h.serveControl(w, r)
		return
	}
	h.dispatch(w, r)
}

// Control-plane paths are never matchable.
func isControlPath(path string) bool {
	switch {
	case path == "/doubles", path == "/proxies", path == "/spy":
		return true
	case strings.HasPrefix(path, "/doubles/"), strings.HasPrefix(path, "/spy/"):
		return true
	}
	return false
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := r.URL.RequestURI()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		h.log.Warn("reading request body", "endpoint", endpoint, "error", err)
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}

	h.mu.RLock()
	m, found := h.doubles.FindForEndpoint(endpoint, h.port)
	h.mu.RUnlock()

	var resp *response.Response
	var outcome, matchedID string
	if !found {
		resp = response.NotFound()
		outcome = metrics.OutcomeNotFound
		h.log.Debug("no double matched", "method", r.Method, "endpoint", endpoint)
	} else {
		matchedID = m.ID()
		switch matched := m.(type) {
		case *double.Double:
			resp = response.FromDouble(matched)
			outcome = metrics.OutcomeDouble
		case *double.Proxy:
			resp = h.forward(r, matched, endpoint, body)
			outcome = metrics.OutcomeProxy
		default:
			resp = response.NotFound()
			outcome = metrics.OutcomeNotFound
		}
	}

	writeResponse(w, resp)
	h.record(r, endpoint, body, matchedID, resp)
	h.collector.ObserveRequest(outcome, time.Since(start))
}

// forward replays the request against the proxy's target and captures
// the upstream answer. Any upstream failure becomes a 502 so the
// calling test sees a response rather than a hang.
func (h *Handler) forward(r *http.Request, p *double.Proxy, endpoint string, body []byte) *response.Response {
	target := strings.TrimRight(p.Target().String(), "/") + endpoint

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		return h.upstreamFailure(target, err)
	}
	copyRequestHeaders(outReq.Header, r.Header)
	removeHopByHopHeaders(outReq.Header)
	outReq.Header.Set("X-Forwarded-For", r.RemoteAddr)
	outReq.Header.Set("X-Forwarded-Host", r.Host)

	upResp, err := h.upstream.Do(outReq)
	if err != nil {
		return h.upstreamFailure(target, err)
	}
	defer func() { _ = upResp.Body.Close() }()

	upBody, err := io.ReadAll(io.LimitReader(upResp.Body, MaxUpstreamBodySize))
	if err != nil {
		return h.upstreamFailure(target, err)
	}

	headers := flattenHeader(upResp.Header)
	stripHopByHop(headers)
	return response.Proxied(upResp.StatusCode, headers, upBody)
}

func (h *Handler) upstreamFailure(target string, err error) *response.Response {
	h.log.Warn("upstream request failed", "target", target, "error", err)
	body, _ := json.Marshal(map[string]string{
		"error":   "bad_gateway",
		"message": "upstream request failed",
	})
	return response.Proxied(http.StatusBadGateway, map[string]string{"Content-Type": "application/json"}, body)
}

func (h *Handler) record(r *http.Request, endpoint string, body []byte, matchedID string, resp *response.Response) {
	recorded := body
	if len(recorded) > spylog.MaxRecordedBody {
		recorded = recorded[:spylog.MaxRecordedBody]
	}

	h.spy.Record(&spylog.Entry{
		Method:     r.Method,
		Endpoint:   endpoint,
		Headers:    r.Header.Clone(),
		Body:       string(recorded),
		BodySize:   len(body),
		RemoteAddr: r.RemoteAddr,
		MatchedID:  matchedID,
		Response:   resp.Representation(),
	})
	h.collector.SetSpyEntries(h.spy.Size())
}

func writeResponse(w http.ResponseWriter, resp *response.Response) {
	for name, value := range resp.Headers() {
		w.Header().Set(name, value)
	}
	w.WriteHeader(resp.StatusCode())
	if body := resp.Body(); len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// Registry access, all funneled through the handler's lock.

func (h *Handler) register(m double.Matchable) {
	h.mu.Lock()
	h.doubles.Register(m, h.port)
	n := h.doubles.Len(h.port)
	h.mu.Unlock()

	h.collector.SetDoublesRegistered(n)
}

func (h *Handler) unregister(id string) {
	h.mu.Lock()
	h.doubles.Unregister(id, h.port)
	n := h.doubles.Len(h.port)
	h.mu.Unlock()

	h.collector.SetDoublesRegistered(n)
}

func (h *Handler) reset() {
	h.mu.Lock()
	h.doubles.Reset(h.port)
	h.mu.Unlock()

	h.collector.SetDoublesRegistered(0)
}

func (h *Handler) setAll(ms []double.Matchable) {
	h.mu.Lock()
	h.doubles.Reset(h.port)
	for _, m := range ms {
		h.doubles.Register(m, h.port)
	}
	n := h.doubles.Len(h.port)
	h.mu.Unlock()

	h.collector.SetDoublesRegistered(n)
}

func (h *Handler) doubleCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doubles.Len(h.port)
}

func (h *Handler) allMatchables() []double.Matchable {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doubles.All(h.port)
}

func copyRequestHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopByHopHeaders(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func stripHopByHop(headers map[string]string) {
	for _, name := range hopByHopHeaders {
		delete(headers, http.CanonicalHeaderKey(name))
	}
}

func flattenHeader(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		flat[name] = strings.Join(values, ", ")
	}
	return flat
}
