package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/vocabreview/internal/fsrs"
	"github.com/conorfennell/vocabreview/internal/review"
	"github.com/conorfennell/vocabreview/internal/storage"
	"github.com/conorfennell/vocabreview/internal/sync"
)

// UserHeader carries the caller's user ID. Authentication happens upstream.
const UserHeader = "X-User-ID"

const (
	defaultDueLimit = 20
	maxDueLimit     = 500
	maxBodyBytes    = 1 << 20
)

var errBadRequest = errors.New("bad request")

// Server holds the dependencies for the HTTP server.
type Server struct {
	db      *storage.DB
	reviews *review.Service
	syncer  *sync.Syncer
	logger  *slog.Logger
	router  *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, reviews *review.Service, syncer *sync.Syncer, logger *slog.Logger) *Server {
	s := &Server{
		db:      db,
		reviews: reviews,
		syncer:  syncer,
		logger:  logger,
		router:  http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(sw, r)
	s.logger.Debug("HTTP request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", sw.status,
		"duration", time.Since(start),
	)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth())

	// Review session
	s.router.HandleFunc("GET /api/review/due", s.handleGetDue())
	s.router.HandleFunc("POST /api/review", s.handlePostReview())
	s.router.HandleFunc("GET /api/cards/{id}/preview", s.handleGetPreview())
	s.router.HandleFunc("GET /api/cards/{id}/logs", s.handleGetLogs())
	s.router.HandleFunc("POST /api/cards/{id}/reschedule", s.handlePostReschedule())

	// Vocabulary
	s.router.HandleFunc("GET /api/vocabulary", s.handleGetVocabulary())
	s.router.HandleFunc("POST /api/vocabulary", s.handlePostVocabulary())
	s.router.HandleFunc("DELETE /api/vocabulary/{id}", s.handleDeleteVocabulary())

	// Source management
	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

type cardView struct {
	storage.StoredCard
	Retrievability float64 `json:"retrievability"`
}

type outcomeView struct {
	State         fsrs.CardState `json:"state"`
	Due           *time.Time     `json:"due"`
	Stability     float64        `json:"stability"`
	Difficulty    float64        `json:"difficulty"`
	ScheduledDays float64        `json:"scheduled_days"`
	Interval      string         `json:"interval"`
	IntervalSecs  int64          `json:"interval_seconds"`
}

func newOutcomeView(o fsrs.Outcome) outcomeView {
	return outcomeView{
		State:         o.Card.State,
		Due:           o.Card.Due,
		Stability:     o.Card.Stability,
		Difficulty:    o.Card.Difficulty,
		ScheduledDays: o.Card.ScheduledDays,
		Interval:      o.Interval.String(),
		IntervalSecs:  int64(o.Interval / time.Second),
	}
}

func (s *Server) view(sc storage.StoredCard) cardView {
	return cardView{StoredCard: sc, Retrievability: s.reviews.Retrievability(sc.Card)}
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleGetDue lists the caller's due cards, New cards first.
func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		limit := defaultDueLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err = strconv.Atoi(v)
			if err != nil || limit < 1 {
				s.writeError(w, r, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
				return
			}
			limit = min(limit, maxDueLimit)
		}

		cards, err := s.reviews.Due(r.Context(), userID, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]cardView, 0, len(cards))
		for _, c := range cards {
			views = append(views, s.view(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"cards": views, "count": len(views)})
	}
}

// handleGetPreview shows the outcome of each grade for one card.
func (s *Server) handleGetPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cardID, err := userAndPathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sc, p, err := s.reviews.Preview(r.Context(), userID, cardID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		outcomes := make(map[string]outcomeView, len(fsrs.Grades))
		for _, g := range fsrs.Grades {
			outcomes[g.String()] = newOutcomeView(p.For(g))
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": s.view(sc), "outcomes": outcomes})
	}
}

// handlePostReview commits a grade.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var sub review.Submission
		if err := decodeJSON(w, r, &sub); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.reviews.Submit(r.Context(), userID, sub)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": s.view(res.Card), "log": res.Log})
	}
}

// handleGetLogs returns the card's review history.
func (s *Server) handleGetLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cardID, err := userAndPathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		logs, err := s.reviews.History(r.Context(), userID, cardID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if logs == nil {
			logs = []fsrs.ReviewLog{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
	}
}

// handlePostReschedule replays a card's history under the current parameters.
func (s *Server) handlePostReschedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cardID, err := userAndPathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sc, err := s.reviews.Reschedule(r.Context(), userID, cardID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": s.view(sc)})
	}
}

// handleGetVocabulary lists the caller's items with their cards.
func (s *Server) handleGetVocabulary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cards, err := s.reviews.Vocabulary(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]cardView, 0, len(cards))
		for _, c := range cards {
			views = append(views, s.view(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"vocabulary": views})
	}
}

// handlePostVocabulary saves a word. A repeated word answers 200 with the
// existing item instead of 201.
func (s *Server) handlePostVocabulary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req review.NewWord
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		v, created, err := s.reviews.SaveWord(r.Context(), userID, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"vocabulary": v, "created": created})
	}
}

// handleDeleteVocabulary removes an item with its card and log.
func (s *Server) handleDeleteVocabulary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, id, err := userAndPathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.reviews.DeleteWord(r.Context(), userID, id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetSources lists the caller's sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sources, err := s.db.GetAllSources(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	}
}

// handlePostSource registers a git URL or a directory inside the local root.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req struct {
			Path string `json:"path"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		src, err := s.syncer.AddSource(r.Context(), userID, req.Path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"source": src})
	}
}

// handleDeleteSource deletes a source. Imported items stay.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, id, err := userAndPathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.DeleteSource(r.Context(), userID, id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync triggers a sync and waits for it.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := userIDFrom(r); err != nil {
			s.writeError(w, r, err)
			return
		}
		reports, err := s.syncer.RunSync(r.Context())
		if reports == nil {
			reports = []sync.Report{}
		}
		resp := map[string]any{"reports": reports}
		if err != nil {
			s.logger.Warn("Sync finished with errors", "error", err)
			resp["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func userIDFrom(r *http.Request) (int64, error) {
	v := r.Header.Get(UserHeader)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: missing or invalid %s header", errBadRequest, UserHeader)
	}
	return id, nil
}

func userAndPathID(r *http.Request) (int64, int64, error) {
	userID, err := userIDFrom(r)
	if err != nil {
		return 0, 0, err
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, 0, fmt.Errorf("%w: invalid id %q", errBadRequest, r.PathValue("id"))
	}
	return userID, id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, fsrs.ErrInvalidGrade),
		errors.Is(err, review.ErrInvalidRequest),
		errors.Is(err, sync.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fsrs.ErrInvalidCardState),
		errors.Is(err, fsrs.ErrClockRegression),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
