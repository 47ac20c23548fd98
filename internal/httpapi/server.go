package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/service"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
	"github.com/gatehouse-io/gatehouse/internal/obs"
)

// PermissionSink receives permission changes for asynchronous fan-out.
type PermissionSink interface {
	OnPermissionChange(change types.PermissionChange)
}

type Dependencies struct {
	Logger           *log.Logger
	Addr             string
	AccessService    *service.AccessService
	HeartbeatService *service.HeartbeatService
	Permissions      PermissionSink
}

type Server struct {
	httpServer       *http.Server
	logger           *log.Logger
	mux              *http.ServeMux
	accessService    *service.AccessService
	heartbeatService *service.HeartbeatService
	permissions      PermissionSink
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:           d.Logger,
		mux:              mux,
		accessService:    d.AccessService,
		heartbeatService: d.HeartbeatService,
		permissions:      d.Permissions,
	}

	mux.HandleFunc("POST /v1/access_request", s.handleAccessRequest)
	mux.HandleFunc("POST /v1/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /v1/permission_change", s.handlePermissionChange)
	mux.HandleFunc("POST /v1/admin/passback_reset", s.handlePassbackReset)
	mux.Handle("GET /metrics", obs.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	handler := loggingMiddleware(d.Logger, obs.Instrument(mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req types.AccessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.accessService.Decide(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSubjectID):
			writeError(w, http.StatusBadRequest, "invalid_subject_id", err.Error())
		case errors.Is(err, service.ErrInvalidDeviceID):
			writeError(w, http.StatusBadRequest, "invalid_device_id", err.Error())
		case errors.Is(err, service.ErrInvalidDirection):
			writeError(w, http.StatusBadRequest, "invalid_direction", err.Error())
		default:
			s.logger.Printf("access_request error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	if !resp.Known {
		writeJSON(w, http.StatusForbidden, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.heartbeatService.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeviceID) {
			writeError(w, http.StatusBadRequest, "invalid_device_id", err.Error())
			return
		}
		s.logger.Printf("heartbeat error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handlePermissionChange accepts the change and returns 202 immediately.
// Fan-out happens on the propagator's pool; the caller never waits for
// devices.
func (s *Server) handlePermissionChange(w http.ResponseWriter, r *http.Request) {
	var change types.PermissionChange
	if err := decodeJSON(r, &change); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if strings.TrimSpace(change.SubjectID) == "" || strings.TrimSpace(change.AreaID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_change", "subject_id and area_id are required")
		return
	}
	if change.Change != types.ChangeAdded && change.Change != types.ChangeRemoved {
		writeError(w, http.StatusBadRequest, "invalid_change", "change must be ADDED or REMOVED")
		return
	}

	s.permissions.OnPermissionChange(change)
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

type passbackResetRequest struct {
	SubjectID string `json:"subject_id"`
	AreaID    string `json:"area_id"`
}

func (s *Server) handlePassbackReset(w http.ResponseWriter, r *http.Request) {
	var req passbackResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if err := s.accessService.ResetPassback(r.Context(), req.SubjectID, req.AreaID); err != nil {
		if errors.Is(err, service.ErrInvalidSubjectID) || errors.Is(err, service.ErrInvalidAreaID) {
			writeError(w, http.StatusBadRequest, "invalid_reset", err.Error())
			return
		}
		s.logger.Printf("passback_reset error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
