package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	mw "github.com/Eigensu/SM-Visitor/internal/http/middleware"
	"github.com/Eigensu/SM-Visitor/internal/http/response"
	"github.com/Eigensu/SM-Visitor/internal/service"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

type VisitsHandler struct {
	svc         *service.VisitService
	scanLimiter *mw.RateLimiter
}

func NewVisitsHandler(svc *service.VisitService, scanLimiter *mw.RateLimiter) *VisitsHandler {
	return &VisitsHandler{svc: svc, scanLimiter: scanLimiter}
}

func (h *VisitsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	scan := r.With(mw.RequireRole(domain.RoleGuard))
	if h.scanLimiter != nil {
		scan = scan.With(h.scanLimiter.Middleware())
	}
	scan.Post("/scan", h.Scan)

	r.With(mw.RequireRole(domain.RoleGuard)).Post("/", h.Start)
	r.Get("/today", h.ListToday)
	r.With(mw.RequireRole(domain.RoleOwner)).Patch("/{id}/approve", h.Approve)
	r.With(mw.RequireRole(domain.RoleOwner)).Patch("/{id}/reject", h.Reject)
	r.With(mw.RequireRole(domain.RoleGuard)).Patch("/{id}/checkout", h.Checkout)
	r.With(mw.RequireRole(domain.RoleGuard)).Delete("/{id}", h.Cancel)

	return r
}

type scanRequest struct {
	QRToken string `json:"qr_token"`
}

func (h *VisitsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QRToken == "" {
		response.BadRequest(w, "qr_token is required")
		return
	}

	res, err := h.svc.Scan(r.Context(), req.QRToken)
	if err != nil {
		logger.ErrorContext(r.Context(), "scan failed", "error", err)
		response.InternalError(w, "scan failed")
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *VisitsHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)

	var req domain.StartVisitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	visit, err := h.svc.Start(r.Context(), p, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, visit)
}

func (h *VisitsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Approve)
}

func (h *VisitsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Reject)
}

func (h *VisitsHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, p domain.Principal, id string) (*domain.Visit, error),
) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	visit, err := fn(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, visit)
}

func (h *VisitsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	visit, err := h.svc.Checkout(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, visit)
}

func (h *VisitsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)
	id := chi.URLParam(r, "id")

	if err := h.svc.Cancel(r.Context(), p, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *VisitsHandler) ListToday(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r)

	visits, err := h.svc.ListToday(r.Context(), p, r.URL.Query().Get("guard_id"), r.URL.Query().Get("owner_flat"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, visits)
}

// writeServiceError maps core errors onto the HTTP error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var credErr *service.CredentialError
	switch {
	case errors.As(err, &credErr):
		response.WriteErrorWithDetails(w, http.StatusBadRequest,
			"invalid credential", response.CodeInvalidCredential, string(credErr.Reason))
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, "visit not found")
	case errors.Is(err, service.ErrUnauthorized):
		response.Forbidden(w, "access denied")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(w, "visit is not in a state that allows this", response.CodeInvalidTransition)
	case errors.Is(err, service.ErrAlreadyCheckedOut):
		response.Conflict(w, "visit already checked out", response.CodeAlreadyCheckedOut)
	case errors.Is(err, service.ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrDirectoryLookup):
		response.WriteError(w, http.StatusBadGateway, "directory lookup failed", response.CodeDirectoryLookup)
	default:
		logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
		response.InternalError(w, "internal error")
	}
}
