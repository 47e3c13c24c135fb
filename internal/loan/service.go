// Package loan orchestrates loan application, active-loan retrieval, and the
// service-fee payment calls. It holds no state of its own; the backend is
// authoritative for loan and payment status.
package loan

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"pesaflow/internal/api"
	"pesaflow/internal/phone"
)

// Loan lifecycle statuses as reported by the backend.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusDisbursed = "DISBURSED"
)

// Provider references are opaque but shape-checked locally before a verify
// round trip.
var referencePattern = regexp.MustCompile(`^[A-Za-z0-9_=-]{8,64}$`)

// Application is the backend's response to a loan application, including
// everything needed to collect the service fee.
type Application struct {
	LoanID           int64  `json:"loan_id"`
	PaymentReference string `json:"payment_reference"`
	ServiceFee       int64  `json:"service_fee"`
	AmountMinor      int64  `json:"amount_kobo"`
	Email            string `json:"email"`
	AuthorizationURL string `json:"paystack_authorization_url"`
	AccessCode       string `json:"paystack_access_code"`
	Message          string `json:"message"`
}

// Loan is the user's current active loan, if any.
type Loan struct {
	HasLoan    bool      `json:"has_loan"`
	Status     string    `json:"status"`
	Amount     int64     `json:"amount"`
	ServiceFee int64     `json:"service_fee"`
	MpesaPhone string    `json:"mpesa_phone"`
	CreatedAt  time.Time `json:"created_at"`
	LastEvent  string    `json:"last_event"`
}

// PaymentInit is the backend's response to a payment initialization.
type PaymentInit struct {
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code"`
	AuthorizationURL string `json:"authorization_url"`
	AmountMinor      int64  `json:"amount_kobo"`
	Email            string `json:"email"`
}

// PaymentStatus is the backend's verdict on a payment reference. Status is
// "verified" or "already_verified" when OK.
type PaymentStatus struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

type Service struct {
	api *api.Client
	log *slog.Logger
}

func NewService(client *api.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{api: client, log: log}
}

// Apply submits a loan application. The amount is passed through as-is; the
// backend (and the fee schedule, for callers that consult it) is the
// authority on acceptable amounts. The M-Pesa phone is normalized first.
func (s *Service) Apply(ctx context.Context, amount int64, mpesaPhone string) (*Application, error) {
	normalized, err := phone.Normalize(mpesaPhone)
	if err != nil {
		return nil, &api.ValidationError{Field: "mpesa_phone", Message: err.Error()}
	}

	var app Application
	body := map[string]any{"amount": amount, "mpesa_phone": normalized}
	if err := s.api.Post(ctx, "/loans/apply/", body, true, &app); err != nil {
		return nil, err
	}
	s.log.Info("loan application submitted", "loan_id", app.LoanID, "service_fee", app.ServiceFee)
	return &app, nil
}

// Active returns the user's current loan; HasLoan is false when none exists.
func (s *Service) Active(ctx context.Context) (*Loan, error) {
	var l Loan
	if err := s.api.Get(ctx, "/loans/active/", true, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// InitServiceFeePayment asks the backend to (re)initialize the service-fee
// payment for a loan, returning the checkout details.
func (s *Service) InitServiceFeePayment(ctx context.Context, loanID int64) (*PaymentInit, error) {
	if loanID <= 0 {
		return nil, &api.ValidationError{Field: "loan_id", Message: "loan ID is required"}
	}

	var init PaymentInit
	body := map[string]any{"loan_id": loanID}
	if err := s.api.Post(ctx, "/payments/init/", body, true, &init); err != nil {
		return nil, err
	}
	s.log.Info("service fee payment initialized", "loan_id", loanID, "reference", init.Reference)
	return &init, nil
}

// VerifyServiceFeePayment asks the backend to confirm a payment reference
// with the provider. Only this verdict counts as settlement; a client-side
// completion callback never does.
func (s *Service) VerifyServiceFeePayment(ctx context.Context, reference string) (*PaymentStatus, error) {
	if !referencePattern.MatchString(reference) {
		return nil, &api.ValidationError{Field: "reference", Message: "invalid payment reference"}
	}

	var status PaymentStatus
	body := map[string]string{"reference": reference}
	if err := s.api.Post(ctx, "/payments/verify/", body, true, &status); err != nil {
		return nil, err
	}
	s.log.Info("service fee payment verified", "reference", reference, "status", status.Status)
	return &status, nil
}
