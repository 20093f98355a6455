package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

// SessionStarter begins a new kiosk session, revoking the previous one.
type SessionStarter interface {
	StartSession(ctx context.Context) *service.Generation
}

type Dependencies struct {
	Logger   *slog.Logger
	Addr     string
	Display  *service.Display
	Notices  *service.NoticeBoard
	Sessions SessionStarter
	// SessionContext parents every session started over HTTP. Request
	// contexts end with the request, so they cannot be used.
	SessionContext context.Context
}

// Server exposes the kiosk display state to local tooling.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	display    *service.Display
	notices    *service.NoticeBoard
	sessions   SessionStarter
	sessionCtx context.Context
}

// Status is the body of GET /v1/status.
type Status struct {
	Generation uint64                      `json:"generation"`
	Version    uint64                      `json:"version"`
	Reader     service.ReaderStatus        `json:"reader"`
	Phase      service.Phase               `json:"phase"`
	Pending    *types.RecognizedCredential `json:"pending,omitempty"`
	Countdown  int                         `json:"countdown,omitempty"`
	Occupants  int                         `json:"occupants"`
	HasPreview bool                        `json:"has_preview"`
}

type sessionResponse struct {
	Generation uint64 `json:"generation"`
}

type noticesResponse struct {
	Notices []service.Notice `json:"notices"`
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	logger := logging.NewComponentLogger(d.Logger, "httpapi")
	sessionCtx := d.SessionContext
	if sessionCtx == nil {
		sessionCtx = context.Background()
	}

	s := &Server{
		logger:     logger,
		mux:        mux,
		display:    d.Display,
		notices:    d.Notices,
		sessions:   d.Sessions,
		sessionCtx: sessionCtx,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/occupancy", s.handleOccupancy)
	mux.HandleFunc("GET /v1/preview", s.handlePreview)
	mux.HandleFunc("GET /v1/notices", s.handleNotices)
	mux.HandleFunc("POST /v1/session", s.handleSession)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           loggingMiddleware(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	return s.httpServer.Serve(lis)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.display.Snapshot()
	writeJSON(w, http.StatusOK, Status{
		Generation: st.Generation,
		Version:    st.Version,
		Reader:     st.Reader,
		Phase:      st.Phase,
		Pending:    st.Pending,
		Countdown:  st.Countdown,
		Occupants:  st.Occupancy.Len(),
		HasPreview: st.Preview != nil,
	})
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	view := s.display.Snapshot().Occupancy
	if wantsProtobuf(r) {
		msg, err := occupancyToProto(view)
		if err != nil {
			s.logger.Error("occupancy encode failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	if view.Occupants == nil {
		view.Occupants = []types.Occupant{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	frame := s.display.Snapshot().Preview
	if frame == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ct := frame.Format
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", frame.CapturedAt.UTC().Format(http.TimeFormat))
	_, _ = w.Write(frame.Data)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_after", "after must be a non-negative integer")
			return
		}
		after = n
	}
	notices := s.notices.Since(after)
	if notices == nil {
		notices = []service.Notice{}
	}
	writeJSON(w, http.StatusOK, noticesResponse{Notices: notices})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "no_supervisor", "sessions are not managed by this process")
		return
	}
	gen := s.sessions.StartSession(s.sessionCtx)
	s.logger.Info("session started over http", slog.Uint64("generation", gen.ID))
	writeJSON(w, http.StatusAccepted, sessionResponse{Generation: gen.ID})
}
