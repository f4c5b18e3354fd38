// Package server provides the HTTP status API for watch mode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/cringecast/internal/database"
	"github.com/bryan-buckman/cringecast/internal/ledger"
	"github.com/bryan-buckman/cringecast/internal/logging"
	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/podcast"
)

// Trigger is the part of the poller the API drives.
type Trigger interface {
	Trigger() bool
	Status() podcast.PollStatus
}

// Options configures a Server. Catalog and Poller may be nil.
type Options struct {
	Catalog database.Store
	Feeds   []model.Feed
	Poller  Trigger
	Logger  *slog.Logger
}

// Server is the main HTTP server.
type Server struct {
	catalog database.Store
	feeds   []model.Feed
	poller  Trigger
	logger  *slog.Logger
	router  chi.Router
}

// New creates a new server.
func New(opts Options) *Server {
	s := &Server{
		catalog: opts.Catalog,
		feeds:   opts.Feeds,
		poller:  opts.Poller,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/feeds", s.handleFeeds)
		r.Get("/downloads", s.handleDownloads)
		r.Get("/runs", s.handleRuns)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
		r.Post("/sync", s.handleSync)
	})

	s.router = r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// --- API Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.poller != nil {
		resp["poller"] = s.poller.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

type feedStatus struct {
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Policy       string     `json:"policy"`
	Dir          string     `json:"dir"`
	Retrieved    int        `json:"retrieved"`
	Downloads    int        `json:"downloads"`
	Bytes        int64      `json:"bytes"`
	LastDownload *time.Time `json:"last_download,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	stats := map[string]model.FeedStats{}
	if s.catalog != nil {
		all, err := s.catalog.FeedStats()
		if err != nil {
			s.logger.Warn("catalog feed stats failed", "error", err)
		}
		for _, st := range all {
			stats[st.Feed] = st
		}
	}

	out := make([]feedStatus, 0, len(s.feeds))
	for _, f := range s.feeds {
		fs := feedStatus{
			Name:   f.Name,
			URL:    f.URL,
			Policy: model.PolicyName(f.Policy),
			Dir:    f.Dir,
		}
		if set, err := ledger.Load(ledger.Path(f.Dir)); err != nil {
			fs.Error = err.Error()
		} else {
			fs.Retrieved = len(set)
		}
		if st, ok := stats[f.Name]; ok {
			fs.Downloads = st.Downloads
			fs.Bytes = st.Bytes
			if !st.LastDownload.IsZero() {
				last := st.LastDownload
				fs.LastDownload = &last
			}
		}
		out = append(out, fs)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		http.Error(w, "Catalog disabled", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	downloads, err := s.catalog.RecentDownloads(r.URL.Query().Get("feed"), limit)
	if err != nil {
		s.logger.Error("list downloads failed", "error", err)
		http.Error(w, "Failed to list downloads", http.StatusInternalServerError)
		return
	}
	if downloads == nil {
		downloads = []model.Download{}
	}
	writeJSON(w, http.StatusOK, downloads)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		http.Error(w, "Catalog disabled", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	runs, err := s.catalog.RecentRuns(limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		http.Error(w, "Catalog disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		PollingInterval int `json:"polling_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	// Enforce minimum.
	if req.PollingInterval < database.MinPollingInterval {
		req.PollingInterval = database.MinPollingInterval
	}
	if err := s.catalog.SetSetting(model.SettingPollingInterval, strconv.Itoa(req.PollingInterval)); err != nil {
		http.Error(w, "Failed to save", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "polling_interval": req.PollingInterval})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		http.Error(w, "Catalog disabled", http.StatusServiceUnavailable)
		return
	}
	interval, err := s.catalog.GetPollingInterval()
	if err != nil {
		http.Error(w, "Failed to read settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"polling_interval": interval,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		http.Error(w, "Polling disabled", http.StatusServiceUnavailable)
		return
	}
	status := "queued"
	if !s.poller.Trigger() {
		status = "pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

// --- Helpers ---

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
