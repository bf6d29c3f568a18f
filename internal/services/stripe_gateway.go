package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripeGateway charges cards through Stripe payment intents
type StripeGateway struct{}

// NewStripeGateway configures the Stripe client with the secret key
func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeGateway{}, nil
}

// Charge creates and confirms a payment intent. The client supplies a
// payment method id in payment_data.payment_method_id.
func (g *StripeGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Metadata: map[string]string{
			"payment_id":            req.PaymentID.String(),
			"booking_reference":     req.BookingReference,
			"transaction_reference": req.TransactionReference,
		},
		Description: stripe.String("Bus ticket " + req.BookingReference),
	}
	if pm, ok := req.Payload["payment_method_id"].(string); ok && pm != "" {
		params.PaymentMethod = stripe.String(pm)
		params.Confirm = stripe.Bool(true)
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		}
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return &ChargeResponse{
				FailureReason: stripeErr.Msg,
				Response:      map[string]interface{}{"gateway": "stripe", "code": string(stripeErr.Code)},
			}, nil
		}
		return nil, fmt.Errorf("stripe charge failed: %w", err)
	}

	resp := &ChargeResponse{
		GatewayReference: pi.ID,
		Response: map[string]interface{}{
			"gateway": "stripe",
			"status":  string(pi.Status),
			"id":      pi.ID,
		},
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		resp.Success = true
	case stripe.PaymentIntentStatusCanceled:
		resp.FailureReason = "Payment was canceled"
	default:
		resp.FailureReason = fmt.Sprintf("Payment requires further action (%s)", pi.Status)
	}
	return resp, nil
}

// Refund refunds part or all of a payment intent
func (g *StripeGateway) Refund(ctx context.Context, gatewayReference string, amount float64) (string, error) {
	if gatewayReference == "" {
		return "", fmt.Errorf("gateway reference is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayReference),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	}

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}
	return r.ID, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
