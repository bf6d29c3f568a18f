package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swiftbus/booking-backend/internal/models"
)

// PaymentGateway charges and refunds money with an external provider.
// A declined charge is a ChargeResponse with Success=false; an error means
// the gateway could not be reached or answered garbage.
type PaymentGateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
	Refund(ctx context.Context, gatewayReference string, amount float64) (string, error)
	Name() string
}

// ChargeRequest is what the coordinator asks a gateway to charge
type ChargeRequest struct {
	PaymentID            uuid.UUID
	BookingReference     string
	TransactionReference string
	Amount               float64
	Currency             string
	Method               models.PaymentMethod
	Payload              map[string]interface{}
}

// ChargeResponse is the gateway outcome
type ChargeResponse struct {
	Success          bool
	GatewayReference string
	FailureReason    string
	Response         map[string]interface{}
}

// ============================================================================
// SIMULATED GATEWAY
// ============================================================================

// SimulatedGatewayConfig controls the simulated provider
type SimulatedGatewayConfig struct {
	Delay       time.Duration
	SuccessRate float64
}

// SimulatedGateway answers every method locally. Payloads with
// "simulate_failure" set are declined with that value as the reason.
type SimulatedGateway struct {
	config SimulatedGatewayConfig

	mu      sync.Mutex
	charges map[string]float64
	rng     *rand.Rand
}

var simulatedFailureReasons = []string{
	"insufficient_funds",
	"card_declined",
	"account_locked",
	"processing_error",
}

// NewSimulatedGateway creates a simulated gateway
func NewSimulatedGateway(cfg SimulatedGatewayConfig) *SimulatedGateway {
	if cfg.SuccessRate < 0 {
		cfg.SuccessRate = 0
	}
	if cfg.SuccessRate > 1 {
		cfg.SuccessRate = 1
	}
	return &SimulatedGateway{
		config:  cfg,
		charges: make(map[string]float64),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Charge simulates a provider round trip
func (g *SimulatedGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	response := map[string]interface{}{
		"gateway": string(req.Method),
		"amount":  req.Amount,
	}

	if reason, ok := req.Payload["simulate_failure"]; ok {
		msg := fmt.Sprint(reason)
		if msg == "" || msg == "true" {
			msg = "Payment declined by provider"
		}
		response["status"] = "failed"
		return &ChargeResponse{FailureReason: msg, Response: response}, nil
	}

	g.mu.Lock()
	success := g.rng.Float64() < g.config.SuccessRate
	failure := simulatedFailureReasons[g.rng.Intn(len(simulatedFailureReasons))]
	g.mu.Unlock()

	if !success {
		response["status"] = "failed"
		return &ChargeResponse{FailureReason: failure, Response: response}, nil
	}

	reference := fmt.Sprintf("%s%d%s", gatewayPrefix(req.Method), time.Now().Unix(), uuid.New().String()[:4])
	response["status"] = "success"
	response["reference"] = reference

	g.mu.Lock()
	g.charges[reference] = req.Amount
	g.mu.Unlock()

	return &ChargeResponse{Success: true, GatewayReference: reference, Response: response}, nil
}

// Refund returns a refund reference for a charge this gateway made
func (g *SimulatedGateway) Refund(ctx context.Context, gatewayReference string, amount float64) (string, error) {
	if gatewayReference == "" {
		return "", fmt.Errorf("gateway reference is required")
	}
	if err := g.wait(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	charged, ok := g.charges[gatewayReference]
	g.mu.Unlock()
	// Charges from before a restart are unknown and accepted as is.
	if ok && amount > charged+0.01 {
		return "", fmt.Errorf("refund %.2f exceeds charge %.2f", amount, charged)
	}

	return fmt.Sprintf("REF%d%s", time.Now().Unix(), uuid.New().String()[:4]), nil
}

// Name returns the gateway name
func (g *SimulatedGateway) Name() string {
	return "simulated"
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.config.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.config.Delay):
		return nil
	}
}

func gatewayPrefix(method models.PaymentMethod) string {
	switch method {
	case models.PaymentMethodMobileMoney:
		return "MM"
	case models.PaymentMethodBankTransfer:
		return "BT"
	case models.PaymentMethodCash:
		return "CSH"
	default:
		return strings.ToUpper(string(method))
	}
}

// ============================================================================
// ROUTER
// ============================================================================

// GatewayRouter dispatches each payment method to its gateway
type GatewayRouter struct {
	fallback PaymentGateway
	byMethod map[models.PaymentMethod]PaymentGateway
}

// NewGatewayRouter routes every method to fallback until overridden with Use
func NewGatewayRouter(fallback PaymentGateway) *GatewayRouter {
	return &GatewayRouter{
		fallback: fallback,
		byMethod: make(map[models.PaymentMethod]PaymentGateway),
	}
}

// Use routes a method to a dedicated gateway
func (r *GatewayRouter) Use(method models.PaymentMethod, gateway PaymentGateway) {
	r.byMethod[method] = gateway
}

// For returns the gateway that handles the method
func (r *GatewayRouter) For(method models.PaymentMethod) PaymentGateway {
	if g, ok := r.byMethod[method]; ok {
		return g
	}
	return r.fallback
}

// ForName returns the gateway with the given name, used to refund through
// the gateway that took the charge
func (r *GatewayRouter) ForName(name string) PaymentGateway {
	for _, g := range r.byMethod {
		if g.Name() == name {
			return g
		}
	}
	return r.fallback
}
