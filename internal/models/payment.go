package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PaymentState is the status of a payment row
type PaymentState string

const (
	PaymentStatePending    PaymentState = "pending"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStateCompleted  PaymentState = "completed"
	PaymentStateFailed     PaymentState = "failed"
	PaymentStateRefunded   PaymentState = "refunded"
)

// PaymentMethod identifies how a customer pays
type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile-money"
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
)

// FeeType describes how a processing fee is applied
type FeeType string

const (
	FeeTypeFlat    FeeType = "flat"
	FeeTypePercent FeeType = "percent"
)

// PaymentMethodInfo describes a supported payment method.
// A zero MaxAmount means no upper limit.
type PaymentMethodInfo struct {
	ID            PaymentMethod `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	ProcessingFee float64       `json:"processing_fee"`
	FeeType       FeeType       `json:"fee_type"`
	MinAmount     float64       `json:"min_amount"`
	MaxAmount     float64       `json:"max_amount"`
	IsActive      bool          `json:"is_active"`
}

// DefaultPaymentMethods is the method catalog offered to customers
func DefaultPaymentMethods() []PaymentMethodInfo {
	return []PaymentMethodInfo{
		{
			ID:            PaymentMethodMobileMoney,
			Name:          "Mobile Money",
			Description:   "Pay with a mobile money wallet",
			ProcessingFee: 0,
			FeeType:       FeeTypeFlat,
			MinAmount:     10,
			MaxAmount:     50000,
			IsActive:      true,
		},
		{
			ID:            PaymentMethodBankTransfer,
			Name:          "Bank Transfer",
			Description:   "Direct transfer from a bank account",
			ProcessingFee: 5,
			FeeType:       FeeTypeFlat,
			MinAmount:     50,
			MaxAmount:     100000,
			IsActive:      true,
		},
		{
			ID:            PaymentMethodCard,
			Name:          "Credit/Debit Card",
			Description:   "Visa, MasterCard, American Express",
			ProcessingFee: 2.5,
			FeeType:       FeeTypePercent,
			MinAmount:     10,
			MaxAmount:     200000,
			IsActive:      true,
		},
		{
			ID:            PaymentMethodCash,
			Name:          "Cash",
			Description:   "Pay at the station counter",
			ProcessingFee: 0,
			FeeType:       FeeTypeFlat,
			MinAmount:     0,
			MaxAmount:     0,
			IsActive:      true,
		},
	}
}

// AcceptsAmount checks the method limits
func (m PaymentMethodInfo) AcceptsAmount(amount float64) bool {
	if amount < m.MinAmount {
		return false
	}
	return m.MaxAmount == 0 || amount <= m.MaxAmount
}

// JSONMap is a free-form JSONB column
type JSONMap map[string]interface{}

// Value implements driver.Valuer for JSONB
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// Payment is one payment attempt against a booking
type Payment struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	BookingID            uuid.UUID     `json:"booking_id" db:"booking_id"`
	Amount               float64       `json:"amount" db:"amount"`
	Currency             string        `json:"currency" db:"currency"`
	PaymentMethod        PaymentMethod `json:"payment_method" db:"payment_method"`
	PaymentStatus        PaymentState  `json:"payment_status" db:"payment_status"`
	TransactionReference string        `json:"transaction_reference" db:"transaction_reference"`
	Gateway              string        `json:"gateway" db:"gateway"`
	GatewayReference     *string       `json:"gateway_reference,omitempty" db:"gateway_reference"`
	GatewayResponse      JSONMap       `json:"gateway_response,omitempty" db:"gateway_response"`
	FailureReason        *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	PaymentDate          *time.Time    `json:"payment_date,omitempty" db:"payment_date"`
	RefundAmount         float64       `json:"refund_amount" db:"refund_amount"`
	RefundReference      *string       `json:"refund_reference,omitempty" db:"refund_reference"`
	RefundDate           *time.Time    `json:"refund_date,omitempty" db:"refund_date"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// CanRefund reports whether a refund is allowed for the payment
func (p *Payment) CanRefund() bool {
	return p.PaymentStatus == PaymentStateCompleted && p.RefundAmount == 0
}

// RefundAmountFor resolves the refund amount. Missing, non-positive or
// excessive requests refund the full payment.
func (p *Payment) RefundAmountFor(requested *float64) float64 {
	if requested == nil || *requested <= 0 || *requested > p.Amount {
		return p.Amount
	}
	return roundMoney(*requested)
}

// ProcessPaymentRequest is the client payload to pay for a booking
type ProcessPaymentRequest struct {
	BookingID      string                 `json:"booking_id" binding:"required"`
	PaymentMethod  string                 `json:"payment_method" binding:"required"`
	Amount         float64                `json:"amount" binding:"required"`
	GatewayPayload map[string]interface{} `json:"payment_data,omitempty"`
}

// RefundPaymentRequest optionally carries a partial amount
type RefundPaymentRequest struct {
	RefundAmount *float64 `json:"refund_amount,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// PaymentResult is returned after a successful authorization
type PaymentResult struct {
	Payment *Payment `json:"payment"`
	Booking *Booking `json:"booking"`
}

// RefundResult describes a completed refund
type RefundResult struct {
	PaymentID       uuid.UUID    `json:"payment_id"`
	BookingID       uuid.UUID    `json:"booking_id"`
	RefundAmount    float64      `json:"refund_amount"`
	RefundReference string       `json:"refund_reference"`
	Status          PaymentState `json:"status"`
}

// PaymentVerification is the verify endpoint payload
type PaymentVerification struct {
	Payment       *Payment      `json:"payment"`
	BookingStatus BookingStatus `json:"booking_status"`
	PaymentStatus PaymentStatus `json:"booking_payment_status"`
	IsPaid        bool          `json:"is_paid"`
}
