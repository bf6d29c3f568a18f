package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventChargeAttempt        PaymentEventType = "charge_attempt"
	PaymentEventChargeSucceeded      PaymentEventType = "charge_succeeded"
	PaymentEventChargeFailed         PaymentEventType = "charge_failed"
	PaymentEventAmountMismatch       PaymentEventType = "amount_mismatch"
	PaymentEventBookingConfirmed     PaymentEventType = "booking_confirmed"
	PaymentEventBookingConfirmFailed PaymentEventType = "booking_confirmation_failed"
	PaymentEventRefundCompleted      PaymentEventType = "refund_completed"
	PaymentEventRefundFailed         PaymentEventType = "refund_failed"
)

// PaymentAudit is an immutable log entry for a gateway interaction
type PaymentAudit struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty" db:"payment_id"`

	EventType     PaymentEventType `json:"event_type" db:"event_type"`
	PaymentMethod *string          `json:"payment_method,omitempty" db:"payment_method"`
	Gateway       *string          `json:"gateway,omitempty" db:"gateway"`

	// Amount tracking
	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	Outcome          string  `json:"outcome" db:"outcome"`
	GatewayReference *string `json:"gateway_reference,omitempty" db:"gateway_reference"`
	ResponsePayload  JSONMap `json:"response_payload,omitempty" db:"response_payload"`
	ErrorMessage     *string `json:"error_message,omitempty" db:"error_message"`
	ProcessingTimeMs *int64  `json:"processing_time_ms,omitempty" db:"processing_time_ms"`

	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, bookingID uuid.UUID) *PaymentAudit {
	return &PaymentAudit{
		ID:        uuid.New(),
		BookingID: &bookingID,
		EventType: eventType,
		Outcome:   "recorded",
		CreatedAt: time.Now(),
	}
}

// SetPayment sets the payment the event belongs to
func (pa *PaymentAudit) SetPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	pa.PaymentID = &p.ID
	method := string(p.PaymentMethod)
	pa.PaymentMethod = &method
	if p.Gateway != "" {
		gateway := p.Gateway
		pa.Gateway = &gateway
	}
	return pa
}

// SetAmounts records both amounts and returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received float64) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	match := AmountsMatch(expected, received)
	pa.AmountsMatch = &match
	return match
}

// SetOutcome sets the outcome label and gateway reference
func (pa *PaymentAudit) SetOutcome(outcome string, gatewayRef string) *PaymentAudit {
	pa.Outcome = outcome
	if gatewayRef != "" {
		pa.GatewayReference = &gatewayRef
	}
	return pa
}

// SetResponsePayload sets the gateway response
func (pa *PaymentAudit) SetResponsePayload(payload map[string]interface{}) *PaymentAudit {
	pa.ResponsePayload = JSONMap(payload)
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetActor sets request metadata
func (pa *PaymentAudit) SetActor(actor Actor) *PaymentAudit {
	if actor.IPAddress != "" {
		ip := actor.IPAddress
		pa.IPAddress = &ip
	}
	if actor.UserAgent != "" {
		ua := actor.UserAgent
		pa.UserAgent = &ua
	}
	return pa
}

// SetProcessingTime records time elapsed since start
func (pa *PaymentAudit) SetProcessingTime(start time.Time) *PaymentAudit {
	ms := time.Since(start).Milliseconds()
	pa.ProcessingTimeMs = &ms
	return pa
}
