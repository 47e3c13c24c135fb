package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
)

// BrowserCheckout presents the provider's hosted payment page in the user's
// browser and waits for the redirect back to a loopback listener. Hitting
// /callback completes the attempt with the reference from the query string;
// /closed or context cancellation dismisses it.
type BrowserCheckout struct {
	// ListenAddr defaults to an ephemeral loopback port.
	ListenAddr string
	// OpenURL launches the URL; defaults to the platform browser opener.
	OpenURL func(url string) error
	// OnListen, if set, receives the listener's base URL before the page
	// opens. The CLI uses it to print the fallback link.
	OnListen func(baseURL string)
	Log      *slog.Logger
}

func (b *BrowserCheckout) Open(ctx context.Context, req Request) (Outcome, error) {
	if req.AuthorizationURL == "" {
		return Outcome{}, errors.New("no authorization URL for checkout")
	}

	addr := b.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Outcome{}, fmt.Errorf("listen for payment callback: %w", err)
	}
	defer ln.Close()

	events := make(chan Outcome, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("reference")
		if ref == "" {
			ref = r.URL.Query().Get("trxref")
		}
		select {
		case events <- Outcome{Completed: true, Reference: ref}:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Payment submitted. You can close this tab and return to the terminal.</p></body></html>")
	})
	mux.HandleFunc("/closed", func(w http.ResponseWriter, r *http.Request) {
		select {
		case events <- Outcome{Completed: false}:
		default:
		}
		fmt.Fprint(w, "Payment cancelled.")
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	baseURL := "http://" + ln.Addr().String()
	if b.OnListen != nil {
		b.OnListen(baseURL)
	}
	if b.Log != nil {
		b.Log.Debug("payment callback listener up", "url", baseURL, "reference", req.Reference)
	}

	open := b.OpenURL
	if open == nil {
		open = openInBrowser
	}
	if err := open(req.AuthorizationURL); err != nil {
		return Outcome{}, fmt.Errorf("open browser: %w", err)
	}

	select {
	case out := <-events:
		return out, nil
	case <-ctx.Done():
		// The user abandoning the flow is a dismissal, not an open failure.
		return Outcome{Completed: false}, nil
	}
}

func openInBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	return nil
}
