package viz

import (
	"bytes"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/scanroam/internal/httputil"
)

const noSnapshot = "no scan published yet"

// AttachAdminRoutes registers the scan views on the tsweb debug mux:
// /debug/scan (ECharts), /debug/scan.png and /debug/scan.json.
func (p *Publisher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("scan", "latest reduced scan and decision", p.handleChart)
	debug.HandleSilentFunc("scan.png", p.handlePNG)
	debug.HandleSilentFunc("scan.json", p.handleJSON)
}

func (p *Publisher) handleChart(w http.ResponseWriter, r *http.Request) {
	s, ok := p.Latest()
	if !ok {
		httputil.NotFound(w, noSnapshot)
		return
	}
	var buf bytes.Buffer
	if err := RenderChart(&buf, s); err != nil {
		httputil.InternalServerError(w, "failed to render chart: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePNG accepts ?size=<inches>, default 6.
func (p *Publisher) handlePNG(w http.ResponseWriter, r *http.Request) {
	s, ok := p.Latest()
	if !ok {
		httputil.NotFound(w, noSnapshot)
		return
	}
	size := 6.0
	if v := r.URL.Query().Get("size"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 1 || parsed > 20 {
			httputil.BadRequest(w, "size must be between 1 and 20 inches")
			return
		}
		size = parsed
	}
	var buf bytes.Buffer
	if err := RenderPNG(&buf, s, size); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (p *Publisher) handleJSON(w http.ResponseWriter, r *http.Request) {
	s, ok := p.Latest()
	if !ok {
		httputil.NotFound(w, noSnapshot)
		return
	}
	httputil.WriteJSONOK(w, s)
}
