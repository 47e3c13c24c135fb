// Command pesaflow is the terminal client for the LPF micro-loan platform:
// account registration and login, loan application, and the service-fee
// payment flow against the hosted checkout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pesaflow/internal/api"
	"pesaflow/internal/auth"
	"pesaflow/internal/config"
	"pesaflow/internal/fees"
	"pesaflow/internal/loan"
	"pesaflow/internal/logging"
	"pesaflow/internal/payment"
	"pesaflow/internal/session"
	"pesaflow/internal/storage"
)

const usage = `Usage: pesaflow <command> [flags]

Commands:
  register   create an account (optionally with identity documents)
  login      authenticate and store the session token
  logout     erase the session token
  me         show the authenticated profile
  status     show identity verification status
  fee        show the service fee for a loan amount
  apply      apply for a loan
  loan       show the current active loan
  pay        collect and verify the service fee for a loan
  verify     verify a payment reference server-side
  set-url    store a backend base-URL override
`

type app struct {
	cfg      *config.Config
	store    *storage.Store
	sessions *session.Manager
	auth     *auth.Service
	loans    *loan.Service
	payments *payment.Adapter
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	store, err := storage.Open(cfg.StorePath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()
	store.Seal(cfg.StorePassphrase)

	// A stored override beats the environment, resolved once at startup.
	if override, err := store.Get(storage.BaseURLKey); err == nil && override != "" {
		cfg.BaseURL = override
	}

	sessions := session.NewManager(store)
	client := api.New(api.Config{
		BaseURL:       cfg.BaseURL,
		UploadTimeout: cfg.UploadTimeout,
	}, sessions, log)

	checkout := &payment.BrowserCheckout{
		OnListen: func(baseURL string) {
			fmt.Printf("Waiting for payment completion (callback at %s/callback)...\n", baseURL)
		},
		Log: log,
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		auth:     auth.NewService(client, sessions, log),
		loans:    loan.NewService(client, log),
		payments: payment.NewAdapter(checkout, cfg.PaystackPublicKey, cfg.Currency, log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fatal(err)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.auth.Logout()
	case "me":
		return a.me(ctx)
	case "status":
		return a.status(ctx)
	case "fee":
		return a.fee(args)
	case "apply":
		return a.apply(ctx, args)
	case "loan":
		return a.activeLoan(ctx)
	case "pay":
		return a.pay(ctx, args)
	case "verify":
		return a.verify(ctx, args)
	case "set-url":
		return a.setURL(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	phoneArg := fs.String("phone", "", "phone number (07XXXXXXXX or 2547XXXXXXXX)")
	id := fs.String("id", "", "national ID (6-10 digits)")
	password := fs.String("password", "", "password (min 8 characters)")
	idFront := fs.String("id-front", "", "path to national ID front photo")
	idBack := fs.String("id-back", "", "path to national ID back photo")
	selfie := fs.String("selfie", "", "path to selfie photo")
	fs.Parse(args)

	input := auth.RegisterInput{Phone: *phoneArg, NationalID: *id, Password: *password}

	if *idFront == "" && *idBack == "" && *selfie == "" {
		if err := a.auth.Register(ctx, input); err != nil {
			return err
		}
		fmt.Println("Account created. Log in to continue.")
		return nil
	}

	docs, closeDocs, err := openDocuments(*idFront, *idBack, *selfie)
	if err != nil {
		return err
	}
	defer closeDocs()

	err = a.auth.RegisterWithDocuments(ctx, input, docs, func(pct int) {
		fmt.Printf("\rUploading documents... %d%%", pct)
	})
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Println("Account created, documents submitted for verification. Log in to continue.")
	return nil
}

func openDocuments(idFront, idBack, selfie string) (auth.Documents, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	open := func(path string) (auth.Document, error) {
		f, err := os.Open(path)
		if err != nil {
			return auth.Document{}, fmt.Errorf("open document: %w", err)
		}
		opened = append(opened, f)
		return auth.Document{Name: f.Name(), Content: f}, nil
	}

	var docs auth.Documents
	var err error
	if docs.IDFront, err = open(idFront); err == nil {
		if docs.IDBack, err = open(idBack); err == nil {
			docs.Selfie, err = open(selfie)
		}
	}
	if err != nil {
		closeAll()
		return auth.Documents{}, nil, err
	}
	return docs, closeAll, nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	phoneArg := fs.String("phone", "", "phone number")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if err := a.auth.Login(ctx, *phoneArg, *password); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

func (a *app) me(ctx context.Context) error {
	u, err := a.auth.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Phone:        %s\n", u.Phone)
	fmt.Printf("National ID:  %s\n", u.NationalID)
	fmt.Printf("Verification: %s\n", u.VerificationStatus)
	fmt.Printf("Documents:    uploaded=%v\n", u.HasUploadedDocuments)
	return nil
}

func (a *app) status(ctx context.Context) error {
	v, err := a.auth.VerificationStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Verification status: %s\n", v.Status)
	if v.Notes != "" {
		fmt.Printf("Notes: %s\n", v.Notes)
	}
	return nil
}

func (a *app) fee(args []string) error {
	fs := flag.NewFlagSet("fee", flag.ExitOnError)
	amount := fs.Int64("amount", 0, "loan amount in KES")
	fs.Parse(args)

	bracket, err := fees.FeeFor(*amount)
	if err != nil {
		return err
	}
	fmt.Printf("Amount band:  %s\n", bracket.Label)
	fmt.Printf("Service fee:  %d KES\n", bracket.Fee)
	return nil
}

func (a *app) apply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	amount := fs.Int64("amount", 0, "loan amount in KES")
	phoneArg := fs.String("phone", "", "M-Pesa phone number for disbursement")
	fs.Parse(args)

	// Fail on unpriced amounts before the backend sees them.
	bracket, err := fees.FeeFor(*amount)
	if err != nil {
		return err
	}

	app, err := a.loans.Apply(ctx, *amount, *phoneArg)
	if err != nil {
		return err
	}
	fmt.Printf("Loan #%d created.\n", app.LoanID)
	fmt.Printf("Service fee: %d KES (%s)\n", bracket.Fee, bracket.Label)
	fmt.Printf("Payment reference: %s\n", app.PaymentReference)
	fmt.Printf("Run `pesaflow pay -loan %d` to pay the service fee.\n", app.LoanID)
	return nil
}

func (a *app) activeLoan(ctx context.Context) error {
	l, err := a.loans.Active(ctx)
	if err != nil {
		return err
	}
	if !l.HasLoan {
		fmt.Println("No active loan.")
		return nil
	}
	fmt.Printf("Status:      %s\n", l.Status)
	fmt.Printf("Amount:      %d KES\n", l.Amount)
	fmt.Printf("Service fee: %d KES\n", l.ServiceFee)
	fmt.Printf("M-Pesa:      %s\n", l.MpesaPhone)
	if l.LastEvent != "" {
		fmt.Printf("Last event:  %s\n", l.LastEvent)
	}
	return nil
}

// pay runs the full fee flow: backend init, hosted checkout, then the
// server-side verification that alone establishes settlement.
func (a *app) pay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	loanID := fs.Int64("loan", 0, "loan ID")
	fs.Parse(args)

	init, err := a.loans.InitServiceFeePayment(ctx, *loanID)
	if err != nil {
		return err
	}

	reference, err := a.payments.Collect(ctx, payment.CollectInput{
		Email:            init.Email,
		Amount:           float64(init.AmountMinor) / 100,
		Reference:        init.Reference,
		AuthorizationURL: init.AuthorizationURL,
		Metadata:         map[string]string{"loan_id": fmt.Sprint(*loanID), "purpose": "service_fee"},
	})
	if err != nil {
		return err
	}

	fmt.Println("Checkout completed, confirming with the server...")
	status, err := a.loans.VerifyServiceFeePayment(ctx, reference)
	if err != nil {
		return err
	}
	if !status.OK {
		return fmt.Errorf("payment not confirmed (status %q)", status.Status)
	}
	fmt.Printf("Payment verified: %s\n", status.Status)
	return nil
}

func (a *app) verify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	ref := fs.String("ref", "", "payment reference")
	fs.Parse(args)

	status, err := a.loans.VerifyServiceFeePayment(ctx, *ref)
	if err != nil {
		return err
	}
	fmt.Printf("ok=%v status=%s\n", status.OK, status.Status)
	return nil
}

func (a *app) setURL(args []string) error {
	fs := flag.NewFlagSet("set-url", flag.ExitOnError)
	u := fs.String("url", "", "backend base URL (empty to clear the override)")
	fs.Parse(args)

	if *u == "" {
		if err := a.store.Delete(storage.BaseURLKey); err != nil {
			return err
		}
		fmt.Println("Base URL override cleared.")
		return nil
	}
	if err := config.ValidateBaseURL(*u); err != nil {
		return err
	}
	if err := a.store.Set(storage.BaseURLKey, *u); err != nil {
		return err
	}
	fmt.Printf("Base URL override stored: %s\n", *u)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
