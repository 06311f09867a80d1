package webui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/pltanton/insightloop/internal/cron"
	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/report"
	"github.com/pltanton/insightloop/internal/research"
)

// Researcher runs one research query, reporting steps to observer.
type Researcher interface {
	RunObserved(ctx context.Context, query string, observer research.Observer) (*research.Result, error)
}

// Scheduler is the subset of *cron.Scheduler exposed under /api/schedules.
type Scheduler interface {
	ListJobs() []*cron.Job
	FindJob(ref string) (*cron.Job, error)
	PauseJob(id string) error
	ResumeJob(id string) error
	RemoveJob(id string) error
	RunNow(ctx context.Context, id string) (*cron.Job, error)
}

type Server struct {
	researcher Researcher
	store      history.Store
	scheduler  Scheduler
	log        *slog.Logger
	startedAt  time.Time
	upgrader   websocket.Upgrader
}

// NewServer wires the HTTP API. store may be nil, which disables history
// endpoints and saving.
func NewServer(researcher Researcher, store history.Store, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		researcher: researcher,
		store:      store,
		log:        log,
		startedAt:  time.Now().UTC(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WithScheduler enables the schedule endpoints.
func (s *Server) WithScheduler(sched Scheduler) *Server {
	s.scheduler = sched
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/research", s.handleResearch)
	r.Get("/api/research/stream", s.handleResearchStream)

	r.Route("/api/history", func(r chi.Router) {
		r.Get("/", s.handleListHistory)
		r.Delete("/", s.handleClearHistory)
		r.Get("/lookup", s.handleLookup)
		r.Get("/{id}", s.handleGetReport)
		r.Get("/{id}/report.md", s.handleReportMarkdown)
		r.Post("/{id}/rating", s.handleRating)
	})

	r.Route("/api/schedules", func(r chi.Router) {
		r.Get("/", s.handleListSchedules)
		r.Delete("/{ref}", s.scheduleAction(func(id string) error { return s.scheduler.RemoveJob(id) }))
		r.Post("/{ref}/pause", s.scheduleAction(func(id string) error { return s.scheduler.PauseJob(id) }))
		r.Post("/{ref}/resume", s.scheduleAction(func(id string) error { return s.scheduler.ResumeJob(id) }))
		r.Post("/{ref}/run", s.handleRunSchedule)
	})
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(defaultIndexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"history":    s.store != nil,
		"started_at": s.startedAt.Format(time.RFC3339),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"system":     readSystemInfo(r.Context()),
	})
}

type researchRequest struct {
	Query string `json:"query"`
	// Save defaults to true when history is available.
	Save   *bool `json:"save,omitempty"`
	Rating int   `json:"rating,omitempty"`
}

type researchResponse struct {
	Result   *research.Result `json:"result"`
	ReportID int64            `json:"report_id,omitempty"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if s.researcher == nil {
		writeError(w, http.StatusServiceUnavailable, "research pipeline is not initialized")
		return
	}

	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if err := history.ValidateRating(req.Rating); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.researcher.RunObserved(r.Context(), req.Query, nil)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := researchResponse{Result: res}
	if s.store != nil && (req.Save == nil || *req.Save) {
		id, err := s.store.Save(r.Context(), history.ParamsFromResult(res, req.Rating))
		if err != nil {
			s.log.Error("save report failed", "query", req.Query, "error", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		resp.ReportID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamEvent is one websocket frame of /api/research/stream.
type streamEvent struct {
	Type     string           `json:"type"`
	Step     string           `json:"step,omitempty"`
	Result   *research.Result `json:"result,omitempty"`
	ReportID int64            `json:"report_id,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if s.researcher == nil {
		writeError(w, http.StatusServiceUnavailable, "research pipeline is not initialized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// Any read error means the client went away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(ev streamEvent) {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug("websocket write failed", "error", err)
		}
	}

	res, err := s.researcher.RunObserved(ctx, query, func(step string) {
		send(streamEvent{Type: "step", Step: step})
	})
	if err != nil {
		send(streamEvent{Type: "error", Error: err.Error()})
		return
	}

	ev := streamEvent{Type: "result", Result: res}
	if s.store != nil && r.URL.Query().Get("save") != "false" {
		id, err := s.store.Save(ctx, history.ParamsFromResult(res, 0))
		if err != nil {
			s.log.Error("save report failed", "query", query, "error", err)
			send(streamEvent{Type: "error", Error: err.Error()})
			return
		}
		ev.ReportID = id
	}
	send(ev)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not configured")
		return false
	}
	return true
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	queries, err := s.store.ListRecent(r.Context(), limit, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	query := r.URL.Query().Get("query")
	rep, err := s.store.GetByQuery(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rep == nil {
		writeError(w, http.StatusNotFound, "no report for query")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) reportByID(w http.ResponseWriter, r *http.Request) (*history.Report, bool) {
	if !s.requireStore(w) {
		return nil, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return nil, false
	}
	rep, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return rep, true
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if rep, ok := s.reportByID(w, r); ok {
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportByID(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="insightloop-report-`+strconv.FormatInt(rep.ID, 10)+`.md"`)
	_ = report.Write(w, report.FromReport(rep))
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}
	var body struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.store.UpdateRating(r.Context(), id, body.Rating); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "rating": body.Rating})
}

func (s *Server) requireScheduler(w http.ResponseWriter) bool {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "schedules are not running")
		return false
	}
	return true
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": s.scheduler.ListJobs()})
}

// scheduleAction resolves {ref} (job ID or name) and applies fn to the job.
func (s *Server) scheduleAction(fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requireScheduler(w) {
			return
		}
		job, err := s.scheduler.FindJob(chi.URLParam(r, "ref"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if err := fn(job.ID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	job, err := s.scheduler.FindJob(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	done, err := s.scheduler.RunNow(r.Context(), job.ID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, done)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, research.ErrEmptyQuery), errors.Is(err, history.ErrInvalidRating):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound), errors.Is(err, cron.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, cron.ErrAlreadyPaused), errors.Is(err, cron.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const defaultIndexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>InsightLoop.AI</title>
  <style>
    body { font-family: "Segoe UI", sans-serif; margin: 0; background: linear-gradient(145deg,#f7fafc,#e9eef7); color: #1f2937; }
    .wrap { max-width: 1100px; margin: 0 auto; padding: 20px; display: flex; gap: 16px; }
    .side { width: 260px; }
    .main { flex: 1; }
    .panel { background: #fff; border-radius: 12px; box-shadow: 0 8px 30px rgba(15,23,42,.08); padding: 16px; margin-bottom: 16px; }
    #steps, #insights, #table { white-space: pre-wrap; }
    #steps { color: #475569; font-size: 14px; }
    .row { display: flex; gap: 8px; }
    input { flex: 1; padding: 10px; border: 1px solid #cbd5e1; border-radius: 8px; }
    button { padding: 10px 16px; border: 0; border-radius: 8px; background: #0f766e; color: #fff; cursor: pointer; }
    button:hover { background: #0d9488; }
    #history li { cursor: pointer; margin: 4px 0; }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="side panel">
      <h3>Research history</h3>
      <input id="filter" placeholder="Filter..." />
      <ul id="history"></ul>
      <button id="clear">Clear history</button>
    </div>
    <div class="main">
      <div class="panel">
        <h2>InsightLoop.AI</h2>
        <div class="row">
          <input id="query" placeholder="e.g. Compare Dropbox vs Box pricing" />
          <button id="run">Research</button>
        </div>
      </div>
      <div class="panel"><h3>Agent steps</h3><div id="steps"></div></div>
      <div class="panel"><h3>Key insights</h3><div id="insights"></div></div>
      <div class="panel"><h3>Comparison table</h3><div id="table"></div></div>
      <div class="panel"><h3>Sources</h3><ol id="links"></ol><a id="download" href="#" hidden>Download report (.md)</a></div>
    </div>
  </div>
  <script>
    const $ = (id) => document.getElementById(id);
    const show = (r, id) => {
      $('insights').textContent = r.insights || '';
      $('table').textContent = r.comparison_table || '(no table)';
      $('links').innerHTML = '';
      (r.links || []).forEach(l => { const li = document.createElement('li'); li.textContent = l; $('links').appendChild(li); });
      if (id) { $('download').href = '/api/history/' + id + '/report.md'; $('download').hidden = false; }
    };
    async function loadHistory() {
      const resp = await fetch('/api/history/?limit=10&filter=' + encodeURIComponent($('filter').value));
      const data = await resp.json();
      $('history').innerHTML = '';
      (data.queries || []).forEach(q => {
        const li = document.createElement('li');
        li.textContent = q;
        li.onclick = async () => {
          const r = await fetch('/api/history/lookup?query=' + encodeURIComponent(q));
          if (r.ok) { const rep = await r.json(); $('steps').textContent = ''; show(rep, rep.id); }
        };
        $('history').appendChild(li);
      });
    }
    function run() {
      const q = $('query').value.trim();
      if (!q) return;
      $('steps').textContent = '';
      const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
      const ws = new WebSocket(proto + location.host + '/api/research/stream?query=' + encodeURIComponent(q));
      ws.onmessage = (e) => {
        const ev = JSON.parse(e.data);
        if (ev.type === 'step') $('steps').textContent += ev.step + '\n';
        if (ev.type === 'result') { show(ev.result, ev.report_id); loadHistory(); }
        if (ev.type === 'error') $('steps').textContent += 'Error: ' + ev.error + '\n';
      };
    }
    $('run').addEventListener('click', run);
    $('query').addEventListener('keydown', (e) => { if (e.key === 'Enter') run(); });
    $('filter').addEventListener('input', loadHistory);
    $('clear').addEventListener('click', async () => { await fetch('/api/history/', { method: 'DELETE' }); loadHistory(); });
    loadHistory();
  </script>
</body>
</html>`
