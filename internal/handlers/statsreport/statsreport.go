// Package statsreport is a built-in WSGI handler that serves the calling
// worker's own stats bucket as a JSON object, using whichever codec the
// [brim] json_dumps/json_loads options selected (via RequestContext.Encode)
// rather than encoding/json directly.
package statsreport

import (
	"net/http"
	"strings"
	"sync"

	"github.com/brimd/brimd/internal/factory"
)

func init() {
	factory.RegisterWSGI("brimd.handlers.statsreport.Report", func() factory.WSGIHandler { return &Report{} })
}

// Report answers GET with a JSON object mapping each configured stat name
// to its current value. The set of names it reports is fixed at ParseConf
// time from the handler's "names" option; an empty set falls back to the
// reserved counters every worker already carries.
type Report struct {
	mu    sync.RWMutex
	names []string
}

var defaultNames = []string{
	"request_count",
	"status_2xx_count",
	"status_3xx_count",
	"status_4xx_count",
	"status_5xx_count",
	"start_time",
}

// ParseConf reads the "names" option, a comma-separated list of stat
// names to report; if absent or empty, Report falls back to defaultNames.
func (h *Report) ParseConf(name string, conf map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	raw := strings.TrimSpace(conf["names"])
	if raw == "" {
		h.names = defaultNames
		return nil
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	h.names = names
	return nil
}

func (h *Report) Handle(ctx *factory.RequestContext, w factory.ResponseWriter, r factory.Request, _ factory.WSGIHandler) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.mu.RLock()
	names := h.names
	h.mu.RUnlock()
	if names == nil {
		names = defaultNames
	}

	out := make(map[string]uint64, len(names))
	for _, n := range names {
		out[n] = ctx.Stats.Get(n)
	}

	body, err := ctx.Encode(out)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

var _ factory.ConfParser = (*Report)(nil)
