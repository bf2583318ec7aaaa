package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/service"
)

func createVisitor(t *testing.T, stack *testStack, authz string, body map[string]any) domain.Visitor {
	t.Helper()

	resp := doJSON(t, http.MethodPost, stack.server.URL+"/v1/visitors", authz, body, http.StatusCreated)
	defer resp.Body.Close()

	var v domain.Visitor
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode visitor: %v", err)
	}
	return v
}

func TestVisitors_CreateIssuesCredential(t *testing.T) {
	stack := setupTestServer(t, time.Minute)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")

	visitor := createVisitor(t, stack, owner, map[string]any{
		"name":               "Lakshmi",
		"category":           "maid",
		"auto_approval_rule": "always",
	})

	if visitor.ID == "" || visitor.QRToken == "" {
		t.Fatalf("visitor = %+v, want id and qr_token", visitor)
	}
	if !visitor.IsActive {
		t.Fatal("new visitor must be active")
	}
	if visitor.HomeFlat != "A-101" || visitor.CreatedBy != "owner-1" {
		t.Fatalf("ownership = %q/%q, want A-101/owner-1", visitor.HomeFlat, visitor.CreatedBy)
	}

	// Unknown category and rule fall back to safe defaults.
	fallback := createVisitor(t, stack, owner, map[string]any{
		"name":               "Someone",
		"category":           "astronaut",
		"auto_approval_rule": "whatever",
	})
	if fallback.Category != domain.CategoryOther || fallback.AutoApproval != domain.ApproveAlways {
		t.Fatalf("defaults = %s/%s, want other/always", fallback.Category, fallback.AutoApproval)
	}
}

func TestVisitors_CredentialAdmitsAtGate(t *testing.T) {
	stack := setupTestServer(t, time.Minute)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")
	guard := bearer(t, "guard-1", domain.RoleGuard, "")

	visitor := createVisitor(t, stack, owner, map[string]any{
		"name":               "Lakshmi",
		"category":           "maid",
		"auto_approval_rule": "always",
	})

	visit := decodeVisit(t, doJSON(t, http.MethodPost, stack.server.URL+"/v1/visits", guard, map[string]any{
		"qr_token": visitor.QRToken,
	}, http.StatusCreated))
	if visit.Status != domain.VisitAutoApproved {
		t.Fatalf("status = %s, want auto_approved", visit.Status)
	}
	if visit.NameSnapshot != "Lakshmi" || visit.OwnerFlat != "A-101" {
		t.Fatalf("visit = %+v, want snapshot of the visitor and their home flat", visit)
	}
}

func TestVisitors_RevocationStopsAdmission(t *testing.T) {
	stack := setupTestServer(t, time.Minute)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")
	guard := bearer(t, "guard-1", domain.RoleGuard, "")

	visitor := createVisitor(t, stack, owner, map[string]any{
		"name":               "Lakshmi",
		"auto_approval_rule": "always",
	})

	doJSON(t, http.MethodDelete, stack.server.URL+"/v1/visitors/"+visitor.ID, owner, nil, http.StatusOK).Body.Close()

	// The token still decodes, but the dead record refuses admission.
	resp := doJSON(t, http.MethodPost, stack.server.URL+"/v1/visits", guard, map[string]any{
		"qr_token": visitor.QRToken,
	}, http.StatusBadRequest)
	defer resp.Body.Close()

	var errBody struct {
		Details string `json:"details"`
	}
	json.NewDecoder(resp.Body).Decode(&errBody)
	if errBody.Details != string(service.ReasonInactive) {
		t.Fatalf("details = %q, want inactive", errBody.Details)
	}
}

func TestVisitors_OwnershipEnforced(t *testing.T) {
	stack := setupTestServer(t, time.Minute)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")
	otherOwner := bearer(t, "owner-2", domain.RoleOwner, "B-202")

	visitor := createVisitor(t, stack, owner, map[string]any{"name": "Lakshmi"})

	url := stack.server.URL + "/v1/visitors/" + visitor.ID
	doJSON(t, http.MethodDelete, url, otherOwner, nil, http.StatusForbidden).Body.Close()
	doJSON(t, http.MethodPost, url+"/qr", otherOwner, nil, http.StatusForbidden).Body.Close()
}

func TestVisitors_ReissueAfterRevocationRefused(t *testing.T) {
	stack := setupTestServer(t, time.Minute)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")

	visitor := createVisitor(t, stack, owner, map[string]any{"name": "Lakshmi"})
	url := stack.server.URL + "/v1/visitors/" + visitor.ID

	doJSON(t, http.MethodDelete, url, owner, nil, http.StatusOK).Body.Close()
	doJSON(t, http.MethodPost, url+"/qr", owner, nil, http.StatusBadRequest).Body.Close()
}
