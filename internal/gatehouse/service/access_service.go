package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/passback"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
	"github.com/gatehouse-io/gatehouse/internal/ids"
)

var (
	ErrInvalidSubjectID = errors.New("subject_id is required")
	ErrInvalidDeviceID  = errors.New("device_id is required")
	ErrInvalidAreaID    = errors.New("area_id is required")
	ErrInvalidDirection = errors.New("direction must be ENTER or EXIT")
)

// Decider is the decision pipeline as the service sees it.
type Decider interface {
	Evaluate(ctx context.Context, ev types.AccessEvent) (types.AccessDecision, error)
}

// AccessService is the inbound boundary for access requests: it validates
// the raw request, resolves the reporting device and hands a well-formed
// event to the pipeline. Requests from unknown devices are denied without
// touching the pipeline, but still audited.
type AccessService struct {
	registry  *DeviceRegistry
	pipeline  Decider
	tracker   *passback.Tracker
	decisions store.DecisionStore
	logger    *log.Logger
}

func NewAccessService(reg *DeviceRegistry, p Decider, tracker *passback.Tracker, ds store.DecisionStore, logger *log.Logger) *AccessService {
	return &AccessService{registry: reg, pipeline: p, tracker: tracker, decisions: ds, logger: logger}
}

func (s *AccessService) Decide(ctx context.Context, req types.AccessRequest) (types.AccessResponse, error) {
	now := time.Now().UTC()

	subjectID := strings.TrimSpace(req.SubjectID)
	deviceID := strings.TrimSpace(req.DeviceID)

	if subjectID == "" {
		return types.AccessResponse{}, ErrInvalidSubjectID
	}
	if deviceID == "" {
		return types.AccessResponse{}, ErrInvalidDeviceID
	}

	direction, ok := parseDirection(req.Direction)
	if !ok {
		return types.AccessResponse{}, ErrInvalidDirection
	}

	device, known, err := s.registry.Resolve(ctx, deviceID)
	if err != nil {
		return types.AccessResponse{}, err
	}
	if !known {
		s.auditUnknownDevice(ctx, subjectID, deviceID, direction, types.MethodCode(req.Method), now)
		return types.AccessResponse{
			OK:         false,
			Known:      false,
			Granted:    false,
			Reason:     string(types.ReasonUnknownDevice),
			DeviceID:   deviceID,
			ServerTime: now.Format(time.RFC3339Nano),
		}, nil
	}
	_ = s.registry.NoteSeen(ctx, deviceID)

	ev := types.AccessEvent{
		SubjectID:    subjectID,
		DeviceID:     deviceID,
		AreaID:       device.AreaID,
		Direction:    direction,
		Method:       types.MethodCode(req.Method),
		Category:     parseCategory(req.Category),
		Credential:   req.Credential,
		EdgeVerified: req.EdgeVerified,
		Location:     req.Location,
		OccurredAt:   now,
	}
	if t := parseOptionalTimestamp(req.RequestedAt); t != nil {
		ev.OccurredAt = *t
	}

	decision, err := s.pipeline.Evaluate(ctx, ev)
	if err != nil {
		return types.AccessResponse{}, err
	}

	return types.AccessResponse{
		OK:         true,
		Known:      true,
		Granted:    decision.Granted,
		Reason:     string(decision.Reason),
		DecisionID: decision.ID,
		DeviceID:   deviceID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

// ResetPassback forces a (subject, area) pair back to its initial state.
// Privileged: the caller is responsible for authenticating the operator;
// the reset itself is always logged here.
func (s *AccessService) ResetPassback(ctx context.Context, subjectID, areaID string) error {
	subjectID = strings.TrimSpace(subjectID)
	areaID = strings.TrimSpace(areaID)
	if subjectID == "" {
		return ErrInvalidSubjectID
	}
	if areaID == "" {
		return ErrInvalidAreaID
	}

	if err := s.tracker.Reset(ctx, subjectID, areaID); err != nil {
		return err
	}
	s.logger.Printf("passback reset for %s/%s", subjectID, areaID)
	return nil
}

// auditUnknownDevice writes the denial that never reached the pipeline.
// Errors are not returned — a failed audit write must not change what the
// device hears.
func (s *AccessService) auditUnknownDevice(ctx context.Context, subjectID, deviceID string, dir types.Direction, method types.MethodCode, at time.Time) {
	err := s.decisions.RecordDecision(ctx, store.DecisionRecord{
		DecisionID: ids.New(),
		SubjectID:  subjectID,
		DeviceID:   deviceID,
		Direction:  dir,
		Method:     method,
		Granted:    false,
		Reason:     string(types.ReasonUnknownDevice),
		DecidedAt:  at,
	})
	if err != nil {
		s.logger.Printf("unknown-device audit write failed for %s: %v", deviceID, err)
	}
}

func parseDirection(s string) (types.Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(types.DirectionEnter):
		return types.DirectionEnter, true
	case string(types.DirectionExit):
		return types.DirectionExit, true
	default:
		return "", false
	}
}

// parseCategory defaults to recurring: regular staff badges are the
// common case, and temporary passes always say so explicitly.
func parseCategory(s string) types.SubjectCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(types.SubjectTemporary):
		return types.SubjectTemporary
	default:
		return types.SubjectRecurring
	}
}

// parseOptionalTimestamp parses a device-reported RFC 3339 timestamp,
// with or without fractional seconds. Returns nil if the string is empty
// or unparseable; the server clock then stands in.
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		u := t.UTC()
		return &u
	}
	return nil
}
