// Package dashboard serves a read-only view of the persisted stores and the
// mirrored rate-limit log. It never writes to a store.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/solarecho3/web-tools/pkg/metrics"
	"github.com/solarecho3/web-tools/pkg/ratelimit"
	"github.com/solarecho3/web-tools/pkg/store"
	"github.com/solarecho3/web-tools/pkg/table"
)

// DefaultRowLimit caps the rows rendered per table.
const DefaultRowLimit = 200

// Server renders the dashboard pages.
type Server struct {
	glob   string
	redis  *redis.Client
	logger zerolog.Logger
	pages  *template.Template
}

// New creates a dashboard over the stores matching glob. redisClient may be
// nil, in which case the rate-limit page reports that no mirror is set up.
func New(glob string, redisClient *redis.Client, logger zerolog.Logger) *Server {
	return &Server{
		glob:   glob,
		redis:  redisClient,
		logger: logger,
		pages:  template.Must(template.New("dashboard").Parse(pageTemplates)),
	}
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/limits", s.limitsHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type storeSummary struct {
	Name   string
	UserID string
	Tables []tableSummary
	Err    string
}

type tableSummary struct {
	Name string
	Rows int
}

type tableView struct {
	Name      string
	Rows      int
	Columns   []string
	Data      [][]string
	Truncated bool
}

type indexPage struct {
	Glob   string
	Stores []storeSummary
}

type storePage struct {
	Name   string
	UserID string
	Limit  int
	Tables []tableView
}

// indexHandler lists the stores, or renders one store when ?db= names it.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	files, err := store.Discover(s.glob)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if name := r.URL.Query().Get("db"); name != "" {
		s.renderStore(w, r, files, name)
		return
	}

	page := indexPage{Glob: s.glob}
	for _, f := range files {
		page.Stores = append(page.Stores, s.summarize(r.Context(), f))
	}
	s.render(w, "index", page)
}

func (s *Server) summarize(ctx context.Context, path string) storeSummary {
	summary := storeSummary{Name: filepath.Base(path)}
	summary.UserID, _ = store.UserID(path)

	st, err := store.OpenReadOnly(path, s.logger)
	if err != nil {
		summary.Err = err.Error()
		return summary
	}
	defer st.Close()

	names, err := st.Tables(ctx)
	if err != nil {
		summary.Err = err.Error()
		return summary
	}
	for _, name := range names {
		n, err := st.Count(ctx, name)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Str("table", name).Msg("Count failed")
			continue
		}
		summary.Tables = append(summary.Tables, tableSummary{Name: name, Rows: n})
	}
	return summary
}

// renderStore shows the tables of one discovered store. Only files matched
// by the glob can be opened.
func (s *Server) renderStore(w http.ResponseWriter, r *http.Request, files []string, name string) {
	var path string
	for _, f := range files {
		if filepath.Base(f) == name {
			path = f
			break
		}
	}
	if path == "" {
		http.Error(w, fmt.Sprintf("unknown store %q", name), http.StatusNotFound)
		return
	}

	limit := DefaultRowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	st, err := store.OpenReadOnly(path, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer st.Close()

	ctx := r.Context()
	names, err := st.Tables(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if only := r.URL.Query().Get("table"); only != "" {
		names = filterName(names, only)
		if len(names) == 0 {
			http.Error(w, fmt.Sprintf("unknown table %q", only), http.StatusNotFound)
			return
		}
	}

	page := storePage{Name: name, Limit: limit}
	page.UserID, _ = store.UserID(path)
	for _, tn := range names {
		total, err := st.Count(ctx, tn)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		t, err := st.ReadLimit(ctx, tn, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		page.Tables = append(page.Tables, view(tn, total, t))
	}
	s.render(w, "store", page)
}

func filterName(names []string, want string) []string {
	for _, n := range names {
		if n == want {
			return []string{n}
		}
	}
	return nil
}

// view renders the rows read from a table holding total rows.
func view(name string, total int, t *table.Table) tableView {
	v := tableView{Name: name, Rows: total, Columns: t.Columns(), Truncated: total > t.Len()}
	for _, r := range t.Rows() {
		cells := make([]string, len(v.Columns))
		for j, c := range v.Columns {
			cells[j] = table.FormatValue(r[c])
		}
		v.Data = append(v.Data, cells)
	}
	return v
}

type limitRow struct {
	Endpoint string
	ratelimit.Snapshot
}

type limitsPage struct {
	Configured bool
	Err        string
	Limits     []limitRow
}

// limitsHandler renders the rate-limit log mirrored by collecting runs.
func (s *Server) limitsHandler(w http.ResponseWriter, r *http.Request) {
	page := limitsPage{Configured: s.redis != nil}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		log, err := ratelimit.LoadMirrored(ctx, s.redis)
		if err != nil {
			page.Err = err.Error()
		}
		for _, endpoint := range sortedEndpoints(log) {
			page.Limits = append(page.Limits, limitRow{Endpoint: endpoint, Snapshot: log[endpoint]})
		}
	}
	s.render(w, "limits", page)
}

func sortedEndpoints(log map[string]ratelimit.Snapshot) []string {
	out := make([]string, 0, len(log))
	for k := range log {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the rate-limit mirror is reachable.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("Render failed")
	}
}
