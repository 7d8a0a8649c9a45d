package models

import (
	"errors"
	"fmt"
	"time"
)

// ServiceStatus is the lifecycle status of a technical service.
type ServiceStatus string

const (
	ServiceStatusPending    ServiceStatus = "PENDING"
	ServiceStatusInProgress ServiceStatus = "IN_PROGRESS"
	ServiceStatusOnHold     ServiceStatus = "ON_HOLD"
	ServiceStatusCompleted  ServiceStatus = "COMPLETED"
	ServiceStatusCancelled  ServiceStatus = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case ServiceStatusPending, ServiceStatusInProgress, ServiceStatusOnHold,
		ServiceStatusCompleted, ServiceStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the service can no longer change status.
func (s ServiceStatus) IsFinal() bool {
	return s == ServiceStatusCompleted || s == ServiceStatusCancelled
}

// Limits mirror the column sizes of the technical services table.
const (
	MaxFolioLength              = 50
	MaxServiceReasonLength      = 500
	MaxServiceSummaryLength     = 1000
	MaxOnHoldReasonLength       = 255
	MaxCancellationReasonLength = 255
)

var (
	ErrInvalidFolio          = errors.New("folio is not in canonical XROM form")
	ErrInvalidServiceStatus  = errors.New("invalid service status")
	ErrEmptyServiceReason    = errors.New("service reason is required")
	ErrServiceReasonTooLong  = errors.New("service reason exceeds maximum length")
	ErrServiceSummaryTooLong = errors.New("service summary exceeds maximum length")
	ErrDeliveredNotFinal     = errors.New("only completed or cancelled services can be delivered")
)

// ServiceRecord is a technical service as read from the service repository.
type ServiceRecord struct {
	Folio              string        `json:"folio"`
	Status             ServiceStatus `json:"status"`
	ReceptionDate      time.Time     `json:"reception_date"`
	ServiceReason      string        `json:"service_reason"`
	ServiceSummary     *string       `json:"service_summary,omitempty"`
	OnHoldReason       *string       `json:"on_hold_reason,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	CompletionDate     *time.Time    `json:"completion_date,omitempty"`
	DeliveredAt        *time.Time    `json:"delivered_at,omitempty"`
	IsDelivered        bool          `json:"is_delivered"`
}

// Validate checks the record invariants. isCanonical decides whether the
// folio has canonical form; it is passed in so this package stays free of
// the extractor.
func (r *ServiceRecord) Validate(isCanonical func(string) bool) error {
	if isCanonical != nil && !isCanonical(r.Folio) {
		return fmt.Errorf("%w: %q", ErrInvalidFolio, r.Folio)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidServiceStatus, r.Status)
	}
	if r.ServiceReason == "" {
		return ErrEmptyServiceReason
	}
	if len([]rune(r.ServiceReason)) > MaxServiceReasonLength {
		return ErrServiceReasonTooLong
	}
	if r.ServiceSummary != nil && len([]rune(*r.ServiceSummary)) > MaxServiceSummaryLength {
		return ErrServiceSummaryTooLong
	}
	if r.IsDelivered && !r.Status.IsFinal() {
		return ErrDeliveredNotFinal
	}
	return nil
}
