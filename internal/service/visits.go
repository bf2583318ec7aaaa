package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
	"github.com/Eigensu/SM-Visitor/internal/sse"
	"github.com/Eigensu/SM-Visitor/pkg/events"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

// Hub event kinds as seen by SSE subscribers.
const (
	EventNewVisitPending   = "new_visit_pending"
	EventVisitAutoApproved = "visit_auto_approved"
	EventVisitNotifyEntry  = "visit_notify_entry"
	EventVisitApproved     = "visit_approved"
	EventVisitRejected     = "visit_rejected"
	EventVisitCanceled     = "visit_canceled"
	EventVisitCheckedOut   = "visit_checked_out"
)

const defaultPurpose = "Visit"

// VisitService is the admission decision core: it turns a scan or walk-in
// request into a visit with an initial status, and owns the
// approve/reject/cancel/checkout transitions. Every successful transition
// emits exactly one hub event; emission is best-effort and never rolls a
// persisted transition back.
type VisitService struct {
	visits    postgres.VisitRepo
	validator *CredentialValidator
	passes    postgres.PassRepo
	resolver  *AudienceResolver
	hub       *sse.Hub
	bus       events.Publisher
	now       func() time.Time
}

func NewVisitService(
	visits postgres.VisitRepo,
	validator *CredentialValidator,
	passes postgres.PassRepo,
	resolver *AudienceResolver,
	hub *sse.Hub,
	bus events.Publisher,
) *VisitService {
	return &VisitService{
		visits:    visits,
		validator: validator,
		passes:    passes,
		resolver:  resolver,
		hub:       hub,
		bus:       bus,
		now:       time.Now,
	}
}

// ScanResult is the read-only preview shown to the attendant before they
// confirm the visit. Previewing never consumes a one-time pass.
type ScanResult struct {
	Valid       bool              `json:"valid"`
	AutoApprove bool              `json:"auto_approve"`
	Kind        CredentialKind    `json:"credential_kind,omitempty"`
	Visitor     *domain.Visitor   `json:"visitor,omitempty"`
	Pass        *domain.GuestPass `json:"pass,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (s *VisitService) Scan(ctx context.Context, token string) (*ScanResult, error) {
	val, err := s.validator.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !val.OK {
		return &ScanResult{Valid: false, Kind: val.Kind, Error: string(val.Reason)}, nil
	}

	res := &ScanResult{Valid: true, Kind: val.Kind, Visitor: val.Visitor, Pass: val.Pass}
	switch val.Kind {
	case KindRecurring:
		res.AutoApprove = s.wouldAutoApprove(val.Visitor)
	case KindGuestPass:
		res.AutoApprove = true
	}
	return res, nil
}

func (s *VisitService) wouldAutoApprove(v *domain.Visitor) bool {
	switch v.AutoApproval {
	case domain.ApproveAlways, domain.ApproveNotifyOnly:
		return true
	case domain.ApproveWithinSchedule:
		return v.Schedule.Contains(s.now())
	default:
		return false
	}
}

// Start creates a visit. The guard principal is the attendant at the
// gate; authorization for the endpoint itself is enforced upstream.
func (s *VisitService) Start(ctx context.Context, guard domain.Principal, req domain.StartVisitReq) (*domain.Visit, error) {
	if req.IsWalkIn() {
		return s.startWalkIn(ctx, guard, req)
	}
	return s.startFromToken(ctx, guard, req)
}

func (s *VisitService) startWalkIn(ctx context.Context, guard domain.Principal, req domain.StartVisitReq) (*domain.Visit, error) {
	if req.Name == "" || req.OwnerFlat == "" || req.Purpose == "" {
		return nil, fmt.Errorf("%w: walk-in requires name, owner_flat and purpose", ErrInvalidRequest)
	}

	audience, err := s.resolver.Resolve(ctx, domain.Addressing{OwnerFlat: req.OwnerFlat})
	if err != nil {
		return nil, err
	}

	visit := &domain.Visit{
		NameSnapshot:  req.Name,
		PhoneSnapshot: req.Phone,
		PhotoSnapshot: req.PhotoURL,
		Purpose:       req.Purpose,
		OwnerFlat:     audience.Primary,
		TargetFlats:   audience.Targets,
		GuardID:       guard.ID,
		Status:        domain.VisitPending,
	}
	return s.insertAndNotify(ctx, visit, EventNewVisitPending)
}

func (s *VisitService) startFromToken(ctx context.Context, guard domain.Principal, req domain.StartVisitReq) (*domain.Visit, error) {
	val, err := s.validator.Validate(ctx, req.QRToken)
	if err != nil {
		return nil, err
	}
	if !val.OK {
		return nil, credentialErr(val.Reason)
	}

	now := s.now()

	switch val.Kind {
	case KindRecurring:
		visitor := val.Visitor
		audience, err := s.resolver.Resolve(ctx, domain.Addressing{
			AllFlats:  visitor.IsAllFlats,
			Flats:     visitor.ValidFlats,
			OwnerFlat: visitor.HomeFlat,
		})
		if err != nil {
			return nil, err
		}

		purpose := req.Purpose
		if purpose == "" {
			purpose = visitor.DefaultPurpose
		}
		if purpose == "" {
			purpose = defaultPurpose
		}

		visit := &domain.Visit{
			VisitorID:     &visitor.ID,
			NameSnapshot:  visitor.Name,
			PhoneSnapshot: visitor.Phone,
			PhotoSnapshot: visitor.PhotoURL,
			Purpose:       purpose,
			OwnerFlat:     audience.Primary,
			TargetFlats:   audience.Targets,
			GuardID:       guard.ID,
			QRToken:       req.QRToken,
		}

		kind := EventNewVisitPending
		switch {
		case visitor.AutoApproval == domain.ApproveNotifyOnly:
			visit.Status = domain.VisitAutoApproved
			visit.EntryTime = &now
			kind = EventVisitNotifyEntry
		case s.wouldAutoApprove(visitor):
			visit.Status = domain.VisitAutoApproved
			visit.EntryTime = &now
			kind = EventVisitAutoApproved
		default:
			visit.Status = domain.VisitPending
		}
		return s.insertAndNotify(ctx, visit, kind)

	case KindGuestPass:
		pass := val.Pass
		audience, err := s.resolver.Resolve(ctx, domain.Addressing{
			AllFlats:  pass.IsAllFlats,
			Flats:     pass.ValidFlats,
			OwnerFlat: pass.OwnerFlat,
		})
		if err != nil {
			return nil, err
		}

		// Consume the pass before the visit exists. The conditional
		// update is what makes double redemption impossible: the loser
		// of a concurrent race sees no matching row and the whole
		// operation fails.
		consumed, err := s.passes.MarkUsed(ctx, pass.ID, now)
		if err != nil {
			return nil, fmt.Errorf("consume guest pass %s: %w", pass.ID, err)
		}
		if !consumed {
			if now.After(pass.ExpiresAt) {
				return nil, credentialErr(ReasonExpired)
			}
			return nil, credentialErr(ReasonAlreadyUsed)
		}

		name := pass.GuestName
		if name == "" {
			name = "Guest"
		}
		visit := &domain.Visit{
			NameSnapshot: name,
			Purpose:      "Guest visit",
			OwnerFlat:    audience.Primary,
			TargetFlats:  audience.Targets,
			GuardID:      guard.ID,
			EntryTime:    &now,
			Status:       domain.VisitAutoApproved,
			QRToken:      req.QRToken,
		}
		return s.insertAndNotify(ctx, visit, EventVisitAutoApproved)

	default:
		return nil, credentialErr(ReasonInvalidOrExpired)
	}
}

func (s *VisitService) insertAndNotify(ctx context.Context, visit *domain.Visit, kind string) (*domain.Visit, error) {
	created, err := s.visits.Insert(ctx, visit)
	if err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}

	payload := events.VisitCreatedEvent{
		VisitID:     created.ID,
		VisitorName: created.NameSnapshot,
		Purpose:     created.Purpose,
		OwnerFlat:   created.OwnerFlat,
		TargetFlats: created.TargetFlats,
		GuardID:     created.GuardID,
		Status:      string(created.Status),
		EntryTime:   created.EntryTime,
		CreatedAt:   created.CreatedAt,
	}

	ev := sse.NewEvent(kind, payload)
	s.broadcastAudience(ctx, created.TargetFlats, ev)
	if kind == EventNewVisitPending {
		// Attendants track pending approvals on the gate dashboard.
		s.hub.BroadcastRole(string(domain.RoleGuard), ev)
	}
	s.mirror(ctx, events.VisitCreated, payload)

	return created, nil
}

// Approve admits a pending visit. Re-approving an already approved visit
// is idempotent; approving a rejected or auto-approved one is an error.
func (s *VisitService) Approve(ctx context.Context, p domain.Principal, visitID string) (*domain.Visit, error) {
	visit, err := s.getForDecision(ctx, p, visitID)
	if err != nil {
		return nil, err
	}
	if visit.Status == domain.VisitApproved {
		return visit, nil
	}
	if visit.Status != domain.VisitPending {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	ok, err := s.visits.UpdateStatus(ctx, visitID, domain.VisitPending, domain.VisitApproved, &now)
	if err != nil {
		return nil, fmt.Errorf("approve visit %s: %w", visitID, err)
	}
	if !ok {
		// Lost a race. If the winner also approved, report their result
		// idempotently; anything else is a real conflict.
		current, err := s.visits.GetByID(ctx, visitID)
		if err != nil {
			return nil, fmt.Errorf("re-read visit %s: %w", visitID, err)
		}
		if current != nil && current.Status == domain.VisitApproved {
			return current, nil
		}
		return nil, ErrInvalidTransition
	}

	visit.Status = domain.VisitApproved
	visit.EntryTime = &now
	visit.UpdatedAt = now

	payload := events.VisitDecisionEvent{
		VisitID:     visit.ID,
		VisitorName: visit.NameSnapshot,
		DecidedBy:   p.ID,
		DecidedAt:   now,
	}
	s.hub.Publish(visit.GuardID, sse.NewEvent(EventVisitApproved, payload))
	s.mirror(ctx, events.VisitApproved, payload)

	return visit, nil
}

// Reject refuses a pending visit. Unlike Approve there is no idempotent
// path: rejecting anything non-pending is a conflict.
func (s *VisitService) Reject(ctx context.Context, p domain.Principal, visitID string) (*domain.Visit, error) {
	visit, err := s.getForDecision(ctx, p, visitID)
	if err != nil {
		return nil, err
	}
	if visit.Status != domain.VisitPending {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	ok, err := s.visits.UpdateStatus(ctx, visitID, domain.VisitPending, domain.VisitRejected, nil)
	if err != nil {
		return nil, fmt.Errorf("reject visit %s: %w", visitID, err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	visit.Status = domain.VisitRejected
	visit.UpdatedAt = now

	payload := events.VisitDecisionEvent{
		VisitID:     visit.ID,
		VisitorName: visit.NameSnapshot,
		DecidedBy:   p.ID,
		DecidedAt:   now,
	}
	s.hub.Publish(visit.GuardID, sse.NewEvent(EventVisitRejected, payload))
	s.mirror(ctx, events.VisitRejected, payload)

	return visit, nil
}

// Cancel removes a still-pending visit. Only the attendant who created it
// or an admin may cancel.
func (s *VisitService) Cancel(ctx context.Context, p domain.Principal, visitID string) error {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return fmt.Errorf("get visit %s: %w", visitID, err)
	}
	if visit == nil {
		return ErrNotFound
	}
	if !p.IsAdmin() && (p.Role != domain.RoleGuard || p.ID != visit.GuardID) {
		return ErrUnauthorized
	}

	ok, err := s.visits.DeletePending(ctx, visitID)
	if err != nil {
		return fmt.Errorf("cancel visit %s: %w", visitID, err)
	}
	if !ok {
		return ErrInvalidTransition
	}

	now := s.now()
	payload := events.VisitCanceledEvent{VisitID: visitID, CanceledBy: p.ID, CanceledAt: now}
	s.broadcastAudience(ctx, visit.TargetFlats, sse.NewEvent(EventVisitCanceled, payload))
	s.mirror(ctx, events.VisitCanceled, payload)

	return nil
}

// Checkout records the exit time, once, regardless of status.
func (s *VisitService) Checkout(ctx context.Context, p domain.Principal, visitID string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("get visit %s: %w", visitID, err)
	}
	if visit == nil {
		return nil, ErrNotFound
	}
	if p.Role != domain.RoleGuard && !p.IsAdmin() {
		return nil, ErrUnauthorized
	}

	now := s.now()
	ok, err := s.visits.SetExitTime(ctx, visitID, now)
	if err != nil {
		return nil, fmt.Errorf("checkout visit %s: %w", visitID, err)
	}
	if !ok {
		return nil, ErrAlreadyCheckedOut
	}

	visit.ExitTime = &now
	visit.UpdatedAt = now

	payload := events.VisitCheckedOutEvent{VisitID: visitID, ExitTime: now}
	s.broadcastAudience(ctx, []string{visit.OwnerFlat}, sse.NewEvent(EventVisitCheckedOut, payload))
	s.mirror(ctx, events.VisitCheckedOut, payload)

	return visit, nil
}

// ListToday returns today's visits scoped to the caller: guards see the
// visits they created, owners see their flat, admins may filter freely.
func (s *VisitService) ListToday(ctx context.Context, p domain.Principal, guardID, ownerFlat string) ([]domain.Visit, error) {
	filter := postgres.VisitFilter{Limit: 200}
	switch p.Role {
	case domain.RoleGuard:
		filter.GuardID = p.ID
	case domain.RoleOwner:
		filter.OwnerFlat = p.FlatID
	case domain.RoleAdmin:
		filter.GuardID = guardID
		filter.OwnerFlat = ownerFlat
	}

	midnight := s.now().UTC().Truncate(24 * time.Hour)
	visits, err := s.visits.ListSince(ctx, midnight, filter)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return visits, nil
}

func (s *VisitService) getForDecision(ctx context.Context, p domain.Principal, visitID string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("get visit %s: %w", visitID, err)
	}
	if visit == nil {
		return nil, ErrNotFound
	}
	if !canDecide(p, visit) {
		return nil, ErrUnauthorized
	}
	return visit, nil
}

// canDecide: the resident of any targeted flat may approve or reject;
// admins always may.
func canDecide(p domain.Principal, visit *domain.Visit) bool {
	if p.IsAdmin() {
		return true
	}
	if p.Role != domain.RoleOwner || p.FlatID == "" {
		return false
	}
	if p.FlatID == visit.OwnerFlat {
		return true
	}
	return slices.Contains(visit.TargetFlats, p.FlatID)
}

// broadcastAudience and mirror are deliberately best-effort: the state
// transition already persisted, so a delivery problem is logged and
// swallowed rather than surfaced as a failed operation.
func (s *VisitService) broadcastAudience(ctx context.Context, flats []string, ev sse.Event) {
	if err := s.hub.BroadcastAudience(ctx, flats, ev); err != nil {
		logger.ErrorContext(ctx, "audience broadcast failed", "kind", ev.Kind, "flats", flats, "error", err)
	}
}

func (s *VisitService) mirror(ctx context.Context, subject string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "event bus publish failed", "subject", subject, "error", err)
	}
}
