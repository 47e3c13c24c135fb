package loan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pesaflow/internal/api"
	"pesaflow/internal/session"
	"pesaflow/internal/storage"
)

func testService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := session.NewManager(store)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if err := sessions.SetToken(signed); err != nil {
		t.Fatalf("set token: %v", err)
	}

	client := api.New(api.Config{BaseURL: srv.URL}, sessions, nil)
	return NewService(client, nil)
}

func TestApplyNormalizesPhone(t *testing.T) {
	var got map[string]any
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loans/apply/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"loan_id": 7,
			"payment_reference": "LPF_abc123def456",
			"service_fee": 680,
			"amount_kobo": 68000,
			"email": "user-254712345678@loans.internal",
			"paystack_authorization_url": "https://checkout.example/xyz",
			"paystack_access_code": "AC_xyz"
		}`))
	}))

	app, err := svc.Apply(context.Background(), 5000, "0712345678")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got["mpesa_phone"] != "254712345678" {
		t.Errorf("mpesa_phone sent = %v, want normalized", got["mpesa_phone"])
	}
	if got["amount"] != float64(5000) {
		t.Errorf("amount sent = %v, want 5000", got["amount"])
	}
	if app.LoanID != 7 || app.PaymentReference != "LPF_abc123def456" || app.ServiceFee != 680 {
		t.Errorf("application = %+v", app)
	}
	if app.AmountMinor != 68000 {
		t.Errorf("amount minor = %d, want service fee in minor units", app.AmountMinor)
	}
}

func TestApplyRejectsBadPhoneLocally(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))

	_, err := svc.Apply(context.Background(), 5000, "not-a-phone")
	var vErr *api.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "mpesa_phone" {
		t.Errorf("err = %v, want ValidationError on mpesa_phone", err)
	}
}

func TestApplyPassesAmountThrough(t *testing.T) {
	// Amount validation belongs to the fee schedule and the backend, not
	// this service: an out-of-bracket amount still reaches the server.
	var got map[string]any
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Service fee not configured for this amount."}`))
	}))

	_, err := svc.Apply(context.Background(), 1500, "0712345678")
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError from backend", err)
	}
	if got["amount"] != float64(1500) {
		t.Errorf("amount sent = %v, want passed through", got["amount"])
	}
}

func TestActive(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loans/active/" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{
			"has_loan": true,
			"status": "PENDING",
			"amount": 5000,
			"service_fee": 680,
			"mpesa_phone": "254712345678",
			"last_event": "Awaiting service fee payment"
		}`))
	}))

	l, err := svc.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if !l.HasLoan || l.Status != StatusPending || l.Amount != 5000 {
		t.Errorf("loan = %+v", l)
	}
}

func TestActiveNoLoan(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"has_loan": false}`))
	}))

	l, err := svc.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if l.HasLoan {
		t.Error("HasLoan = true, want false")
	}
}

func TestInitServiceFeePayment(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/init/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["loan_id"] != float64(7) {
			t.Errorf("loan_id = %v, want 7", body["loan_id"])
		}
		w.Write([]byte(`{
			"reference": "LPF_abc123def456",
			"access_code": "AC_xyz",
			"authorization_url": "https://checkout.example/xyz",
			"amount_kobo": 68000,
			"email": "user-254712345678@loans.internal"
		}`))
	}))

	init, err := svc.InitServiceFeePayment(context.Background(), 7)
	if err != nil {
		t.Fatalf("init payment: %v", err)
	}
	if init.Reference != "LPF_abc123def456" || init.AmountMinor != 68000 {
		t.Errorf("init = %+v", init)
	}
}

func TestInitServiceFeePaymentRequiresLoanID(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))

	_, err := svc.InitServiceFeePayment(context.Background(), 0)
	var vErr *api.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestVerifyServiceFeePayment(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/verify/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"ok": true, "status": "verified"}`))
	}))

	status, err := svc.VerifyServiceFeePayment(context.Background(), "LPF_abc123def456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !status.OK || status.Status != "verified" {
		t.Errorf("status = %+v", status)
	}
}

func TestVerifyServiceFeePaymentRejectsMalformedReference(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))

	for _, ref := range []string{"", "short", "has spaces in it", "bad/chars!", string(make([]byte, 65))} {
		_, err := svc.VerifyServiceFeePayment(context.Background(), ref)
		var vErr *api.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("reference %q: err = %v, want ValidationError", ref, err)
		}
	}
}
