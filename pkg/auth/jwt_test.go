package auth_test

import (
	"testing"
	"time"

	"github.com/Eigensu/SM-Visitor/pkg/auth"
)

const secret = "unit-test-secret"

func TestAccessToken_RoundTrip(t *testing.T) {
	token, err := auth.NewAccessToken("owner-1", "owner", "A-101", secret, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := auth.ParseAccessToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Sub != "owner-1" || claims.Role != "owner" || claims.FlatID != "A-101" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAccessToken_WrongSecret(t *testing.T) {
	token, _ := auth.NewAccessToken("owner-1", "owner", "", secret, time.Hour)
	if _, err := auth.ParseAccessToken(token, "some-other-secret"); err == nil {
		t.Fatal("token signed with another secret must not parse")
	}
}

func TestAccessToken_Expired(t *testing.T) {
	token, _ := auth.NewAccessToken("owner-1", "owner", "", secret, -time.Minute)
	if _, err := auth.ParseAccessToken(token, secret); err == nil {
		t.Fatal("expired token must not parse")
	}
}

func TestQRToken_RecurringNeverExpires(t *testing.T) {
	token, err := auth.NewRecurringToken("visitor-1", secret)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := auth.ParseQRToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Type != auth.QRTypeRecurring || claims.VisitorID != "visitor-1" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt != nil {
		t.Fatal("recurring tokens carry no expiry; revocation is record-side")
	}
}

func TestQRToken_GuestPassExpires(t *testing.T) {
	token, err := auth.NewGuestPassToken("pass-1", "A-101", secret, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := auth.ParseQRToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Type != auth.QRTypeGuestPass || claims.PassID != "pass-1" || claims.OwnerFlat != "A-101" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("guest pass tokens must expire")
	}

	stale, _ := auth.NewGuestPassToken("pass-1", "A-101", secret, -time.Minute)
	if _, err := auth.ParseQRToken(stale, secret); err == nil {
		t.Fatal("expired guest pass token must not parse")
	}
}

func TestQRToken_AccessTokenIsNotACredential(t *testing.T) {
	token, _ := auth.NewAccessToken("owner-1", "owner", "A-101", secret, time.Hour)

	claims, err := auth.ParseQRToken(token, secret)
	if err != nil {
		// Fine: refusing to parse is also a refusal.
		return
	}
	if claims.Type == auth.QRTypeRecurring || claims.Type == auth.QRTypeGuestPass {
		t.Fatalf("access token parsed as QR credential of type %q", claims.Type)
	}
}
