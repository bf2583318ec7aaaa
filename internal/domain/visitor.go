package domain

import "time"

type VisitorCategory string

const (
	CategoryMaid     VisitorCategory = "maid"
	CategoryCook     VisitorCategory = "cook"
	CategoryDriver   VisitorCategory = "driver"
	CategoryDelivery VisitorCategory = "delivery"
	CategoryOther    VisitorCategory = "other"
)

func ParseVisitorCategory(s string) (VisitorCategory, bool) {
	switch VisitorCategory(s) {
	case CategoryMaid, CategoryCook, CategoryDriver, CategoryDelivery, CategoryOther:
		return VisitorCategory(s), true
	default:
		return "", false
	}
}

// AutoApprovalRule decides whether a credential-backed visit needs a human.
type AutoApprovalRule string

const (
	// ApproveAlways admits immediately, no questions asked.
	ApproveAlways AutoApprovalRule = "always"
	// ApproveWithinSchedule admits immediately only inside the visitor's
	// schedule; outside it the visit falls back to pending.
	ApproveWithinSchedule AutoApprovalRule = "within_schedule"
	// ApproveNotifyOnly admits immediately but the residents get an
	// informational notification rather than an approval request.
	ApproveNotifyOnly AutoApprovalRule = "notify_only"
	// ApproveManual always requires a resident decision.
	ApproveManual AutoApprovalRule = "manual"
)

func ParseAutoApprovalRule(s string) (AutoApprovalRule, bool) {
	switch AutoApprovalRule(s) {
	case ApproveAlways, ApproveWithinSchedule, ApproveNotifyOnly, ApproveManual:
		return AutoApprovalRule(s), true
	default:
		return "", false
	}
}

// Visitor is a long-lived credential owned by a resident: a recurring
// visitor profile with a durable QR token. The token never expires;
// revocation flips IsActive and the validator rejects the still-decodable
// token from then on.
type Visitor struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone,omitempty"`
	PhotoURL       string           `json:"photo_url"`
	Category       VisitorCategory  `json:"category"`
	DefaultPurpose string           `json:"default_purpose,omitempty"`
	CreatedBy      string           `json:"created_by"`
	HomeFlat       string           `json:"home_flat"`
	IsAllFlats     bool             `json:"is_all_flats"`
	ValidFlats     []string         `json:"valid_flats,omitempty"`
	Schedule       Schedule         `json:"schedule"`
	AutoApproval   AutoApprovalRule `json:"auto_approval"`
	QRToken        string           `json:"qr_token,omitempty"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
}

type CreateVisitorReq struct {
	Name           string   `json:"name"`
	Phone          string   `json:"phone"`
	PhotoURL       string   `json:"photo_url"`
	Category       string   `json:"category"`
	DefaultPurpose string   `json:"default_purpose"`
	IsAllFlats     bool     `json:"is_all_flats"`
	ValidFlats     []string `json:"valid_flats"`

	ScheduleEnabled   bool   `json:"schedule_enabled"`
	ScheduleDays      []int  `json:"schedule_days"`
	ScheduleStartTime string `json:"schedule_start_time"`
	ScheduleEndTime   string `json:"schedule_end_time"`

	AutoApprovalRule string `json:"auto_approval_rule"`
}

type UpdateVisitorReq struct {
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	DefaultPurpose *string `json:"default_purpose"`
}
