package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
	"github.com/Eigensu/SM-Visitor/pkg/auth"
)

type CredentialKind string

const (
	KindRecurring CredentialKind = "recurring"
	KindGuestPass CredentialKind = "guest_pass"
)

// Validation is the outcome of presenting a QR token at the gate. On
// success exactly one of Visitor/Pass is set, and it is the live store
// record, not the token's stale copy.
type Validation struct {
	OK      bool
	Kind    CredentialKind
	Visitor *domain.Visitor
	Pass    *domain.GuestPass
	Reason  InvalidReason
}

// CredentialValidator decodes a presented token and checks it against the
// backing record. Validation is strictly read-only: previewing a scan
// never consumes a one-time pass; consumption happens inside visit
// creation.
type CredentialValidator struct {
	visitors postgres.VisitorRepo
	passes   postgres.PassRepo
	secret   string
	now      func() time.Time
}

func NewCredentialValidator(visitors postgres.VisitorRepo, passes postgres.PassRepo, secret string) *CredentialValidator {
	return &CredentialValidator{
		visitors: visitors,
		passes:   passes,
		secret:   secret,
		now:      time.Now,
	}
}

// Validate classifies and verifies the token. A refused credential comes
// back as OK=false with a Reason; only infrastructure failures return an
// error.
func (v *CredentialValidator) Validate(ctx context.Context, token string) (*Validation, error) {
	claims, err := auth.ParseQRToken(token, v.secret)
	if err != nil {
		return &Validation{OK: false, Reason: ReasonInvalidOrExpired}, nil
	}

	switch claims.Type {
	case auth.QRTypeRecurring:
		return v.validateRecurring(ctx, claims.VisitorID)
	case auth.QRTypeGuestPass:
		return v.validatePass(ctx, claims.PassID)
	default:
		return &Validation{OK: false, Reason: ReasonInvalidOrExpired}, nil
	}
}

func (v *CredentialValidator) validateRecurring(ctx context.Context, visitorID string) (*Validation, error) {
	visitor, err := v.visitors.GetByID(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("lookup visitor %s: %w", visitorID, err)
	}
	if visitor == nil {
		return &Validation{OK: false, Kind: KindRecurring, Reason: ReasonNotFound}, nil
	}
	if !visitor.IsActive {
		return &Validation{OK: false, Kind: KindRecurring, Reason: ReasonInactive}, nil
	}
	return &Validation{OK: true, Kind: KindRecurring, Visitor: visitor}, nil
}

func (v *CredentialValidator) validatePass(ctx context.Context, passID string) (*Validation, error) {
	pass, err := v.passes.GetByID(ctx, passID)
	if err != nil {
		return nil, fmt.Errorf("lookup guest pass %s: %w", passID, err)
	}
	if pass == nil {
		return &Validation{OK: false, Kind: KindGuestPass, Reason: ReasonNotFound}, nil
	}
	if pass.UsedAt != nil {
		return &Validation{OK: false, Kind: KindGuestPass, Reason: ReasonAlreadyUsed}, nil
	}
	if v.now().After(pass.ExpiresAt) {
		return &Validation{OK: false, Kind: KindGuestPass, Reason: ReasonExpired}, nil
	}
	return &Validation{OK: true, Kind: KindGuestPass, Pass: pass}, nil
}
