package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/metrics"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/ranking"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/realtime"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/selection"
)

// Refresher is the part of the refresh controller the API uses.
type Refresher interface {
	Request() bool
	State() refresh.State
}

type Server struct {
	refresher Refresher
	selection *selection.Selection
	hub       *realtime.Hub
	metrics   *metrics.Registry
	limiter   *rate.Limiter
	staticDir string
	now       func() time.Time
	log       zerolog.Logger
	router    *mux.Router
	upgrader  websocket.Upgrader
}

type Option func(*Server)

// WithRefreshLimit caps manual refresh requests per minute; zero disables the cap.
func WithRefreshLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithStaticDir serves a built single page app from dir for unmatched paths.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(r Refresher, sel *selection.Selection, hub *realtime.Hub, reg *metrics.Registry, log zerolog.Logger, opts ...Option) *Server {
	server := &Server{
		refresher: r,
		selection: sel,
		hub:       hub,
		metrics:   reg,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		now:       time.Now,
		log:       log.With().Str("component", "api").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(server)
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/state", server.handleState).Methods(http.MethodGet)
	router.HandleFunc("/api/refresh", server.handleRefresh).Methods(http.MethodPost)
	router.HandleFunc("/api/leaderboards", server.handleLeaderboards).Methods(http.MethodGet)
	router.HandleFunc("/api/leaderboards/{category}", server.handleLeaderboard).Methods(http.MethodGet)
	router.HandleFunc("/api/funds", server.handleSearch).Methods(http.MethodGet)
	router.HandleFunc("/api/funds/{id}", server.handleFund).Methods(http.MethodGet)
	router.HandleFunc("/api/selection", server.handleGetSelection).Methods(http.MethodGet)
	router.HandleFunc("/api/selection/{id}", server.handleSelect).Methods(http.MethodPut)
	router.HandleFunc("/api/selection", server.handleClearSelection).Methods(http.MethodDelete)
	router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)

	if server.staticDir != "" {
		router.PathPrefix("/").Handler(spaHandler{staticPath: server.staticDir, indexPath: "index.html"})
	}

	server.router = router
	return server
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	fi, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

type stateResponse struct {
	Status     refresh.Status `json:"status"`
	Seq        uint64         `json:"seq"`
	Reason     string         `json:"reason,omitempty"`
	FetchedAt  *time.Time     `json:"fetchedAt,omitempty"`
	AgeSeconds float64        `json:"ageSeconds"`
	Stale      bool           `json:"stale"`
	Active     int            `json:"active"`
	Passive    int            `json:"passive"`
}

// StateView is the JSON form of a controller state, shared by /api/state and the websocket.
func (s *Server) StateView(st refresh.State) any {
	return s.stateResponse(st)
}

func (s *Server) stateResponse(st refresh.State) stateResponse {
	out := stateResponse{
		Status: st.Status,
		Seq:    st.Seq,
		Reason: st.Reason,
		Stale:  st.Stale(),
	}
	if st.HasSnapshot {
		fetchedAt := st.FetchedAt.UTC()
		out.FetchedAt = &fetchedAt
		out.AgeSeconds = st.Age(s.now()).Seconds()
		out.Active, out.Passive = len(st.Active), len(st.Passive)
	}
	return out
}

type leaderboardResponse struct {
	ranking.LeaderboardView
	FetchedAt time.Time `json:"fetchedAt"`
	Stale     bool      `json:"stale"`
}

type fundResponse struct {
	models.FundRecord
	YTDDisplay    string `json:"ytdDisplay"`
	WeeklyDisplay string `json:"weeklyDisplay"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.refresher.State()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "refresh requested too often"})
		return
	}
	started := s.refresher.Request()
	s.log.Info().Bool("started", started).Msg("Manual refresh requested")
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	board, status, err := s.leaderboard(category, r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleLeaderboards(w http.ResponseWriter, r *http.Request) {
	out := make(map[models.Category]leaderboardResponse, len(models.Categories))
	for _, category := range models.Categories {
		board, status, err := s.leaderboard(category, r.URL.Query().Get("range"))
		if err != nil {
			writeError(w, status, err)
			return
		}
		out[category] = board
	}
	writeJSON(w, http.StatusOK, out)
}

var errNoSnapshot = errors.New("no snapshot loaded yet")

func (s *Server) leaderboard(category models.Category, rangeToken string) (leaderboardResponse, int, error) {
	if rangeToken == "" {
		rangeToken = ranking.RangeYear
	}
	metric, err := ranking.SelectMetric(rangeToken)
	if err != nil {
		return leaderboardResponse{}, http.StatusBadRequest, err
	}

	st := s.refresher.State()
	if !st.HasSnapshot {
		return leaderboardResponse{}, http.StatusServiceUnavailable, errNoSnapshot
	}

	view := ranking.BuildDefault(st.Board(category), category, metric)
	s.metrics.ObserveBuild(category, metric.Range)
	return leaderboardResponse{
		LeaderboardView: view,
		FetchedAt:       st.FetchedAt.UTC(),
		Stale:           st.Stale(),
	}, http.StatusOK, nil
}

type searchResponse struct {
	Query     string         `json:"query"`
	Results   []fundResponse `json:"results"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Stale     bool           `json:"stale"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	st := s.refresher.State()
	if !st.HasSnapshot {
		writeError(w, http.StatusServiceUnavailable, errNoSnapshot)
		return
	}

	query := r.URL.Query().Get("q")
	matches := st.Snapshot.Search(query)
	out := searchResponse{
		Query:     query,
		Results:   make([]fundResponse, 0, len(matches)),
		FetchedAt: st.FetchedAt.UTC(),
		Stale:     st.Stale(),
	}
	for _, rec := range matches {
		out.Results = append(out.Results, newFundResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	rec, err := s.selection.Lookup(models.FundID(mux.Vars(r)["id"]))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, newFundResponse(rec))
}

func (s *Server) handleGetSelection(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.selection.Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"selected": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": true, "fund": newFundResponse(rec)})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	rec, err := s.selection.Select(models.FundID(mux.Vars(r)["id"]))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": true, "fund": newFundResponse(rec)})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	s.selection.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.AddClient(conn)

	_ = s.hub.SendJSON(conn, realtime.Message{
		Type:  realtime.TypeRefreshState,
		State: s.StateView(s.refresher.State()),
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.RemoveClient(conn)
			return
		}
	}
}

func newFundResponse(rec models.FundRecord) fundResponse {
	year, _ := ranking.SelectMetric(ranking.RangeYear)
	week, _ := ranking.SelectMetric(ranking.RangeWeek)
	return fundResponse{
		FundRecord:    rec,
		YTDDisplay:    ranking.FormatPercent(year, rec),
		WeeklyDisplay: ranking.FormatPercent(week, rec),
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
