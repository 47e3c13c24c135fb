// Package auth orchestrates account registration, login, and profile reads.
// All input validation happens locally before a request is made; the session
// token is accepted and stored only at login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"pesaflow/internal/api"
	"pesaflow/internal/phone"
	"pesaflow/internal/session"
)

const minPasswordLength = 8

var nationalIDPattern = regexp.MustCompile(`^[0-9]{6,10}$`)

// ErrLoginFailed is returned when the login response carries no access token.
var ErrLoginFailed = errors.New("login failed")

// Verification statuses as reported by the backend.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

// User mirrors the backend's profile payload.
type User struct {
	Phone                string    `json:"phone"`
	NationalID           string    `json:"national_id"`
	CreatedAt            time.Time `json:"created_at"`
	VerificationStatus   string    `json:"verification_status"`
	IsVerified           bool      `json:"is_verified"`
	HasUploadedDocuments bool      `json:"has_uploaded_documents"`
}

// VerificationStatus is the identity-verification state of the account.
type VerificationStatus struct {
	Status               string `json:"verification_status"`
	Notes                string `json:"verification_notes"`
	HasUploadedDocuments bool   `json:"has_uploaded_documents"`
}

// Document is one identity photo to upload at registration.
type Document struct {
	Name    string
	Content io.Reader
}

// Documents are the three identity photos the backend requires for
// photo-verified registration.
type Documents struct {
	IDFront Document
	IDBack  Document
	Selfie  Document
}

type RegisterInput struct {
	Phone      string
	NationalID string
	Password   string
}

type Service struct {
	api      *api.Client
	sessions *session.Manager
	log      *slog.Logger
}

func NewService(client *api.Client, sessions *session.Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{api: client, sessions: sessions, log: log}
}

// validate normalizes the phone and checks the national ID and password
// locally, so malformed input never costs a network round trip.
func (in RegisterInput) validate() (string, error) {
	normalized, err := phone.Normalize(in.Phone)
	if err != nil {
		return "", &api.ValidationError{Field: "phone", Message: err.Error()}
	}

	id := strings.TrimSpace(in.NationalID)
	if id == "" {
		return "", &api.ValidationError{Field: "national_id", Message: "national ID is required"}
	}
	if !nationalIDPattern.MatchString(id) {
		return "", &api.ValidationError{Field: "national_id", Message: "national ID must be 6-10 digits"}
	}

	if len(in.Password) < minPasswordLength {
		return "", &api.ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	return normalized, nil
}

// Register creates an account. No session is established; Login is the only
// point at which a token is accepted and stored.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	normalized, err := in.validate()
	if err != nil {
		return err
	}

	body := map[string]string{
		"phone":       normalized,
		"national_id": strings.TrimSpace(in.NationalID),
		"password":    in.Password,
	}
	if err := s.api.Post(ctx, "/users/register/", body, false, nil); err != nil {
		return err
	}
	s.log.Info("account registered", "phone", normalized)
	return nil
}

// RegisterWithDocuments creates an account with identity photos attached,
// using the multipart path. Progress is reported as a percentage of bytes
// uploaded.
func (s *Service) RegisterWithDocuments(ctx context.Context, in RegisterInput, docs Documents, progress func(pct int)) error {
	normalized, err := in.validate()
	if err != nil {
		return err
	}
	for _, d := range []struct {
		field string
		doc   Document
	}{
		{"id_front", docs.IDFront},
		{"id_back", docs.IDBack},
		{"selfie", docs.Selfie},
	} {
		if d.doc.Content == nil {
			return &api.ValidationError{Field: d.field, Message: "document is required"}
		}
	}

	fields := map[string]string{
		"phone":       normalized,
		"national_id": strings.TrimSpace(in.NationalID),
		"password":    in.Password,
	}
	files := []api.FilePart{
		{Field: "id_front", Name: docs.IDFront.Name, Content: docs.IDFront.Content},
		{Field: "id_back", Name: docs.IDBack.Name, Content: docs.IDBack.Content},
		{Field: "selfie", Name: docs.Selfie.Name, Content: docs.Selfie.Content},
	}
	if err := s.api.Upload(ctx, "/users/register/", fields, files, false, progress, nil); err != nil {
		return err
	}
	s.log.Info("account registered with documents", "phone", normalized)
	return nil
}

// Login authenticates and stores the returned access token.
func (s *Service) Login(ctx context.Context, phoneNumber, password string) error {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return &api.ValidationError{Field: "phone", Message: err.Error()}
	}
	if password == "" {
		return &api.ValidationError{Field: "password", Message: "password is required"}
	}

	var resp struct {
		Access string `json:"access"`
	}
	body := map[string]string{"phone": normalized, "password": password}
	if err := s.api.Post(ctx, "/users/login/", body, false, &resp); err != nil {
		return err
	}
	if resp.Access == "" {
		return ErrLoginFailed
	}
	if err := s.sessions.SetToken(resp.Access); err != nil {
		return err
	}
	s.log.Info("logged in", "phone", normalized)
	return nil
}

// Logout erases the stored token unconditionally.
func (s *Service) Logout() error {
	if err := s.sessions.ClearToken(); err != nil {
		return err
	}
	s.log.Info("logged out")
	return nil
}

// Me returns the authenticated user's profile.
func (s *Service) Me(ctx context.Context) (*User, error) {
	var u User
	if err := s.api.Get(ctx, "/users/me/", true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// VerificationStatus returns the account's identity-verification state.
func (s *Service) VerificationStatus(ctx context.Context) (*VerificationStatus, error) {
	var v VerificationStatus
	if err := s.api.Get(ctx, "/users/verification-status/", true, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
