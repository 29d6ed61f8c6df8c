// Control API for the restspy engine. It shares the served port with
// the data plane; its paths are reserved and never matchable.

package engine

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dmrschmidt/RestSpy/pkg/double"
	"github.com/dmrschmidt/RestSpy/pkg/httputil"
	"github.com/dmrschmidt/RestSpy/pkg/spylog"
)

const maxControlBodySize = 1 << 20

type doublePayload struct {
	Pattern    string            `json:"pattern"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

type proxyPayload struct {
	Pattern string `json:"pattern"`
	Target  string `json:"target"`
}

type matchableInfo struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Pattern    string            `json:"pattern"`
	StatusCode int               `json:"status_code,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Target     string            `json:"target,omitempty"`
}

func (h *Handler) serveControl(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/doubles":
		switch r.Method {
		case http.MethodPost:
			h.handleCreateDouble(w, r)
		case http.MethodGet:
			h.handleListDoubles(w)
		case http.MethodDelete:
			h.handleResetDoubles(w)
		default:
			httputil.WriteMethodNotAllowed(w, "use POST, GET, or DELETE on /doubles")
		}

	case strings.HasPrefix(path, "/doubles/"):
		if r.Method != http.MethodDelete {
			httputil.WriteMethodNotAllowed(w, "use DELETE on /doubles/{id}")
			return
		}
		h.handleDeleteDouble(w, strings.TrimPrefix(path, "/doubles/"))

	case path == "/proxies":
		if r.Method != http.MethodPost {
			httputil.WriteMethodNotAllowed(w, "use POST on /proxies")
			return
		}
		h.handleCreateProxy(w, r)

	case path == "/spy":
		if r.Method != http.MethodDelete {
			httputil.WriteMethodNotAllowed(w, "use DELETE on /spy")
			return
		}
		h.handleClearSpy(w)

	case path == "/spy/requests":
		if r.Method != http.MethodGet {
			httputil.WriteMethodNotAllowed(w, "use GET on /spy/requests")
			return
		}
		h.handleListRequests(w, r)

	case path == "/spy/status":
		if r.Method != http.MethodGet {
			httputil.WriteMethodNotAllowed(w, "use GET on /spy/status")
			return
		}
		h.handleStatus(w)

	case path == "/spy/metrics":
		if r.Method != http.MethodGet {
			httputil.WriteMethodNotAllowed(w, "use GET on /spy/metrics")
			return
		}
		h.collector.Handler().ServeHTTP(w, r)

	default:
		httputil.WriteNotFound(w, "not_found", "unknown control endpoint")
	}
}

func (h *Handler) handleCreateDouble(w http.ResponseWriter, r *http.Request) {
	var payload doublePayload
	if err := httputil.DecodeJSON(r, &payload, maxControlBodySize); err != nil {
		httputil.WriteBadRequest(w, "invalid_json", err.Error())
		return
	}
	if payload.StatusCode == 0 {
		payload.StatusCode = http.StatusOK
	}

	var body []byte
	if payload.Body != "" {
		body = []byte(payload.Body)
	}

	d, err := double.NewDouble(payload.Pattern, payload.StatusCode, payload.Headers, body)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid_double", err.Error())
		return
	}

	h.register(d)
	h.log.Info("double registered", "id", d.ID(), "pattern", d.Pattern(), "status", d.StatusCode())
	httputil.WriteCreated(w, describeMatchable(d))
}

func (h *Handler) handleCreateProxy(w http.ResponseWriter, r *http.Request) {
	var payload proxyPayload
	if err := httputil.DecodeJSON(r, &payload, maxControlBodySize); err != nil {
		httputil.WriteBadRequest(w, "invalid_json", err.Error())
		return
	}

	p, err := double.NewProxy(payload.Pattern, payload.Target)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid_proxy", err.Error())
		return
	}

	h.register(p)
	h.log.Info("proxy registered", "id", p.ID(), "pattern", p.Pattern(), "target", p.Target().String())
	httputil.WriteCreated(w, describeMatchable(p))
}

func (h *Handler) handleListDoubles(w http.ResponseWriter) {
	all := h.allMatchables()
	infos := make([]matchableInfo, 0, len(all))
	for _, m := range all {
		infos = append(infos, describeMatchable(m))
	}
	httputil.WriteOK(w, map[string]any{"doubles": infos, "count": len(infos)})
}

func (h *Handler) handleResetDoubles(w http.ResponseWriter) {
	h.reset()
	h.log.Info("doubles reset")
	httputil.WriteNoContent(w)
}

// Unregistering an unknown id is deliberately quiet: DELETE is
// idempotent, the state after is the same either way.
func (h *Handler) handleDeleteDouble(w http.ResponseWriter, id string) {
	h.unregister(id)
	h.log.Info("double unregistered", "id", id)
	httputil.WriteNoContent(w)
}

func (h *Handler) handleClearSpy(w http.ResponseWriter) {
	h.spy.Clear()
	h.collector.SetSpyEntries(0)
	h.log.Info("recordings cleared")
	httputil.WriteNoContent(w)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &spylog.Filter{
		Method: q.Get("method"),
		Path:   q.Get("path"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteBadRequest(w, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	entries := h.spy.List(filter)
	httputil.WriteOK(w, map[string]any{"requests": entries, "count": len(entries)})
}

func (h *Handler) handleStatus(w http.ResponseWriter) {
	httputil.WriteOK(w, map[string]any{
		"status":   "running",
		"port":     h.port,
		"doubles":  h.doubleCount(),
		"recorded": h.spy.Size(),
	})
}

func describeMatchable(m double.Matchable) matchableInfo {
	info := matchableInfo{ID: m.ID(), Pattern: m.Pattern()}
	switch v := m.(type) {
	case *double.Double:
		info.Kind = "double"
		info.StatusCode = v.StatusCode()
		info.Headers = v.Headers()
	case *double.Proxy:
		info.Kind = "proxy"
		info.Target = v.Target().String()
	}
	return info
}
