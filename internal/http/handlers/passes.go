package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	mw "github.com/Eigensu/SM-Visitor/internal/http/middleware"
	"github.com/Eigensu/SM-Visitor/internal/http/response"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
	"github.com/Eigensu/SM-Visitor/internal/service"
	"github.com/Eigensu/SM-Visitor/pkg/auth"
	"github.com/Eigensu/SM-Visitor/pkg/events"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

// PassesHandler manages one-time guest passes. Validation here is a
// read-only preview; consumption only ever happens inside visit creation.
type PassesHandler struct {
	passes    postgres.PassRepo
	validator *service.CredentialValidator
	bus       events.Publisher
	jwtSecret string
}

func NewPassesHandler(passes postgres.PassRepo, validator *service.CredentialValidator, bus events.Publisher, jwtSecret string) *PassesHandler {
	return &PassesHandler{passes: passes, validator: validator, bus: bus, jwtSecret: jwtSecret}
}

// Routes covers the owner-facing management surface. Validate is mounted
// separately, outside authentication.
func (h *PassesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(mw.RequireRole(domain.RoleOwner)).Post("/", h.Generate)
	r.With(mw.RequireRole(domain.RoleOwner)).Get("/", h.List)
	return r
}

func (h *PassesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)

	var req domain.GeneratePassReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.ValidityHours < 1 || req.ValidityHours > 72 {
		response.BadRequest(w, "validity_hours must be between 1 and 72")
		return
	}

	validity := time.Duration(req.ValidityHours) * time.Hour
	pass := &domain.GuestPass{
		OwnerID:   p.ID,
		OwnerFlat: p.FlatID,
		GuestName: req.GuestName,
		ExpiresAt: time.Now().Add(validity),
		OneTime:   true,
	}

	created, err := h.passes.Insert(r.Context(), pass)
	if err != nil {
		logger.ErrorContext(r.Context(), "create guest pass failed", "error", err)
		response.InternalError(w, "failed to create guest pass")
		return
	}

	token, err := auth.NewGuestPassToken(created.ID, created.OwnerFlat, h.jwtSecret, validity)
	if err != nil {
		logger.ErrorContext(r.Context(), "mint pass token failed", "pass_id", created.ID, "error", err)
		response.InternalError(w, "failed to issue pass")
		return
	}
	if err := h.passes.SetToken(r.Context(), created.ID, token); err != nil {
		logger.ErrorContext(r.Context(), "store pass token failed", "pass_id", created.ID, "error", err)
		response.InternalError(w, "failed to issue pass")
		return
	}
	created.Token = token

	if h.bus != nil {
		payload := events.PassGeneratedEvent{PassID: created.ID, OwnerID: p.ID, ExpiresAt: created.ExpiresAt}
		if err := h.bus.Publish(r.Context(), events.PassGenerated, payload); err != nil {
			logger.WarnContext(r.Context(), "event bus publish failed", "subject", events.PassGenerated, "error", err)
		}
	}

	response.JSON(w, http.StatusCreated, created)
}

type validatePassResponse struct {
	Valid     bool       `json:"valid"`
	OwnerFlat string     `json:"owner_flat,omitempty"`
	GuestName string     `json:"guest_name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Validate previews a pass token for the gate UI. Deliberately
// unauthenticated: holding the token is the credential being checked.
func (h *PassesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	val, err := h.validator.Validate(r.Context(), token)
	if err != nil {
		logger.ErrorContext(r.Context(), "pass validation failed", "error", err)
		response.InternalError(w, "validation failed")
		return
	}
	if !val.OK || val.Kind != service.KindGuestPass {
		reason := string(val.Reason)
		if val.OK {
			reason = string(service.ReasonInvalidOrExpired)
		}
		response.JSON(w, http.StatusOK, validatePassResponse{Valid: false, Error: reason})
		return
	}

	response.JSON(w, http.StatusOK, validatePassResponse{
		Valid:     true,
		OwnerFlat: val.Pass.OwnerFlat,
		GuestName: val.Pass.GuestName,
		ExpiresAt: &val.Pass.ExpiresAt,
	})
}

func (h *PassesHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)

	passes, err := h.passes.ListByOwner(r.Context(), p.ID, 50)
	if err != nil {
		logger.ErrorContext(r.Context(), "list guest passes failed", "error", err)
		response.InternalError(w, "failed to list passes")
		return
	}

	now := time.Now()
	out := make([]domain.PassSummary, 0, len(passes))
	for _, pass := range passes {
		out = append(out, domain.PassSummary{
			ID:        pass.ID,
			GuestName: pass.GuestName,
			ExpiresAt: pass.ExpiresAt,
			UsedAt:    pass.UsedAt,
			IsActive:  pass.Usable(now),
			CreatedAt: pass.CreatedAt,
		})
	}
	response.JSON(w, http.StatusOK, out)
}
