package domain

import "time"

type VisitStatus string

const (
	VisitPending      VisitStatus = "pending"
	VisitApproved     VisitStatus = "approved"
	VisitRejected     VisitStatus = "rejected"
	VisitAutoApproved VisitStatus = "auto_approved"
)

func ParseVisitStatus(s string) (VisitStatus, bool) {
	switch VisitStatus(s) {
	case VisitPending, VisitApproved, VisitRejected, VisitAutoApproved:
		return VisitStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether the status can never change again. Checkout is
// orthogonal: it sets ExitTime regardless of status and never touches it.
func (s VisitStatus) Terminal() bool {
	return s == VisitApproved || s == VisitRejected || s == VisitAutoApproved
}

// Visit is one admission attempt at the gate. Display fields are
// snapshotted from the credential at creation so later edits to the
// visitor profile don't rewrite history. OwnerFlat is the primary target;
// TargetFlats is the full resolved audience for broadcast membership
// checks.
type Visit struct {
	ID            string      `json:"id"`
	VisitorID     *string     `json:"visitor_id,omitempty"`
	NameSnapshot  string      `json:"name_snapshot"`
	PhoneSnapshot string      `json:"phone_snapshot,omitempty"`
	PhotoSnapshot string      `json:"photo_snapshot_url,omitempty"`
	Purpose       string      `json:"purpose"`
	OwnerFlat     string      `json:"owner_flat"`
	TargetFlats   []string    `json:"target_flats"`
	GuardID       string      `json:"guard_id"`
	EntryTime     *time.Time  `json:"entry_time,omitempty"`
	ExitTime      *time.Time  `json:"exit_time,omitempty"`
	Status        VisitStatus `json:"status"`
	QRToken       string      `json:"qr_token,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// StartVisitReq starts a visit in one of two modes: a scanned QR token, or
// a walk-in with manually entered details. Exactly one mode must be set.
type StartVisitReq struct {
	QRToken string `json:"qr_token,omitempty"`
	Purpose string `json:"purpose,omitempty"`

	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	OwnerFlat string `json:"owner_flat,omitempty"`
}

func (r *StartVisitReq) IsWalkIn() bool { return r.QRToken == "" }

// Addressing is the raw targeting data a visit starts from, before the
// audience resolver turns it into concrete flat ids.
type Addressing struct {
	AllFlats  bool
	Flats     []string
	OwnerFlat string
}

// Audience is the resolved notification target set. Primary is the visit's
// canonical owner flat; Targets always contains Primary.
type Audience struct {
	Primary string
	Targets []string
}
