package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	mw "github.com/Eigensu/SM-Visitor/internal/http/middleware"
	"github.com/Eigensu/SM-Visitor/internal/http/response"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
	"github.com/Eigensu/SM-Visitor/pkg/auth"
	"github.com/Eigensu/SM-Visitor/pkg/events"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

// VisitorsHandler manages recurring visitor credentials. Photo bytes live
// in an external store; this surface only carries their locator.
type VisitorsHandler struct {
	visitors  postgres.VisitorRepo
	bus       events.Publisher
	jwtSecret string
	defaultTZ string
}

func NewVisitorsHandler(visitors postgres.VisitorRepo, bus events.Publisher, jwtSecret, defaultTZ string) *VisitorsHandler {
	return &VisitorsHandler{visitors: visitors, bus: bus, jwtSecret: jwtSecret, defaultTZ: defaultTZ}
}

func (h *VisitorsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(mw.RequireRole(domain.RoleOwner)).Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.With(mw.RequireRole(domain.RoleOwner)).Patch("/{id}", h.Update)
	r.With(mw.RequireRole(domain.RoleOwner)).Delete("/{id}", h.Deactivate)
	r.With(mw.RequireRole(domain.RoleOwner)).Post("/{id}/qr", h.ReissueToken)
	return r
}

func (h *VisitorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)

	var req domain.CreateVisitorReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}
	category, ok := domain.ParseVisitorCategory(req.Category)
	if !ok {
		category = domain.CategoryOther
	}
	rule, ok := domain.ParseAutoApprovalRule(req.AutoApprovalRule)
	if !ok {
		rule = domain.ApproveAlways
	}

	var windows []domain.TimeWindow
	if req.ScheduleEnabled && req.ScheduleStartTime != "" && req.ScheduleEndTime != "" {
		windows = []domain.TimeWindow{{Start: req.ScheduleStartTime, End: req.ScheduleEndTime}}
	}

	visitor := &domain.Visitor{
		Name:           req.Name,
		Phone:          req.Phone,
		PhotoURL:       req.PhotoURL,
		Category:       category,
		DefaultPurpose: req.DefaultPurpose,
		CreatedBy:      p.ID,
		HomeFlat:       p.FlatID,
		IsAllFlats:     req.IsAllFlats,
		ValidFlats:     req.ValidFlats,
		Schedule: domain.Schedule{
			Enabled:    req.ScheduleEnabled,
			DaysOfWeek: req.ScheduleDays,
			Windows:    windows,
			Timezone:   h.defaultTZ,
		},
		AutoApproval: rule,
	}

	created, err := h.visitors.Insert(r.Context(), visitor)
	if err != nil {
		logger.ErrorContext(r.Context(), "create visitor failed", "error", err)
		response.InternalError(w, "failed to create visitor")
		return
	}

	token, err := auth.NewRecurringToken(created.ID, h.jwtSecret)
	if err != nil {
		logger.ErrorContext(r.Context(), "mint visitor token failed", "visitor_id", created.ID, "error", err)
		response.InternalError(w, "failed to issue credential")
		return
	}
	if err := h.visitors.SetToken(r.Context(), created.ID, token); err != nil {
		logger.ErrorContext(r.Context(), "store visitor token failed", "visitor_id", created.ID, "error", err)
		response.InternalError(w, "failed to issue credential")
		return
	}
	created.QRToken = token

	response.JSON(w, http.StatusCreated, created)
}

func (h *VisitorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	visitor, err := h.visitors.GetByID(r.Context(), id)
	if err != nil {
		logger.ErrorContext(r.Context(), "get visitor failed", "visitor_id", id, "error", err)
		response.InternalError(w, "failed to load visitor")
		return
	}
	if visitor == nil {
		response.NotFound(w, "visitor not found")
		return
	}
	if p.Role == domain.RoleOwner && visitor.CreatedBy != p.ID {
		response.Forbidden(w, "access denied")
		return
	}
	response.JSON(w, http.StatusOK, visitor)
}

func (h *VisitorsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)

	var (
		visitors []domain.Visitor
		err      error
	)
	if p.Role == domain.RoleOwner {
		visitors, err = h.visitors.ListByCreator(r.Context(), p.ID, 100)
	} else {
		visitors, err = h.visitors.ListActive(r.Context(), 100)
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "list visitors failed", "error", err)
		response.InternalError(w, "failed to list visitors")
		return
	}
	response.JSON(w, http.StatusOK, visitors)
}

func (h *VisitorsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	var req domain.UpdateVisitorReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Name == nil && req.Phone == nil && req.DefaultPurpose == nil {
		response.BadRequest(w, "no fields to update")
		return
	}

	visitor, ok := h.loadOwned(w, r, p, id)
	if !ok {
		return
	}

	updated, err := h.visitors.Update(r.Context(), visitor.ID, req)
	if err != nil {
		logger.ErrorContext(r.Context(), "update visitor failed", "visitor_id", id, "error", err)
		response.InternalError(w, "failed to update visitor")
		return
	}
	response.JSON(w, http.StatusOK, updated)
}

// Deactivate revokes the credential. The token stays decodable; admission
// is refused because the backing record is the authority.
func (h *VisitorsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	visitor, ok := h.loadOwned(w, r, p, id)
	if !ok {
		return
	}

	revoked, err := h.visitors.Deactivate(r.Context(), visitor.ID)
	if err != nil {
		logger.ErrorContext(r.Context(), "deactivate visitor failed", "visitor_id", id, "error", err)
		response.InternalError(w, "failed to deactivate visitor")
		return
	}
	if revoked && h.bus != nil {
		payload := events.VisitorRevokedEvent{VisitorID: visitor.ID, RevokedBy: p.ID}
		if err := h.bus.Publish(r.Context(), events.VisitorRevoked, payload); err != nil {
			logger.WarnContext(r.Context(), "event bus publish failed", "subject", events.VisitorRevoked, "error", err)
		}
	}
	response.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *VisitorsHandler) ReissueToken(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	visitor, ok := h.loadOwned(w, r, p, id)
	if !ok {
		return
	}
	if !visitor.IsActive {
		response.BadRequest(w, "visitor is deactivated")
		return
	}

	token, err := auth.NewRecurringToken(visitor.ID, h.jwtSecret)
	if err != nil {
		logger.ErrorContext(r.Context(), "mint visitor token failed", "visitor_id", id, "error", err)
		response.InternalError(w, "failed to issue credential")
		return
	}
	if err := h.visitors.SetToken(r.Context(), visitor.ID, token); err != nil {
		logger.ErrorContext(r.Context(), "store visitor token failed", "visitor_id", id, "error", err)
		response.InternalError(w, "failed to issue credential")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"qr_token": token})
}

func (h *VisitorsHandler) loadOwned(w http.ResponseWriter, r *http.Request, p domain.Principal, id string) (*domain.Visitor, bool) {
	visitor, err := h.visitors.GetByID(r.Context(), id)
	if err != nil {
		logger.ErrorContext(r.Context(), "get visitor failed", "visitor_id", id, "error", err)
		response.InternalError(w, "failed to load visitor")
		return nil, false
	}
	if visitor == nil {
		response.NotFound(w, "visitor not found")
		return nil, false
	}
	if !p.IsAdmin() && visitor.CreatedBy != p.ID {
		response.Forbidden(w, "access denied")
		return nil, false
	}
	return visitor, true
}
