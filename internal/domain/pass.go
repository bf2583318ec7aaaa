package domain

import "time"

// GuestPass is a single-use, time-bounded credential for an ad hoc guest.
// UsedAt stays nil until the pass is consumed; consumption happens at most
// once, enforced by a conditional update in the store.
type GuestPass struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	OwnerFlat  string     `json:"owner_flat"`
	GuestName  string     `json:"guest_name,omitempty"`
	Token      string     `json:"token,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	OneTime    bool       `json:"one_time"`
	IsAllFlats bool       `json:"is_all_flats"`
	ValidFlats []string   `json:"valid_flats,omitempty"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (p *GuestPass) Usable(now time.Time) bool {
	return p.UsedAt == nil && now.Before(p.ExpiresAt)
}

type GeneratePassReq struct {
	GuestName     string `json:"guest_name"`
	ValidityHours int    `json:"validity_hours"`
}

type PassSummary struct {
	ID        string     `json:"id"`
	GuestName string     `json:"guest_name,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}
