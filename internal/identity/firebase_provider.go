package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultFirebaseBaseURL hosts the Identity Toolkit REST API.
const DefaultFirebaseBaseURL = "https://identitytoolkit.googleapis.com"

var errFirebaseUpstream = errors.New("identity: firebase request failed")

// FirebaseProviderConfig describes how to reach the Identity Toolkit API.
type FirebaseProviderConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
}

// FirebaseProvider delegates accounts to Firebase Authentication.
type FirebaseProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	clock      func() time.Time
}

type firebaseCredentialRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type firebaseCredentialResponse struct {
	LocalID   string `json:"localId"`
	Email     string `json:"email"`
	IDToken   string `json:"idToken"`
	ExpiresIn string `json:"expiresIn"`
}

type firebaseOobRequest struct {
	RequestType string `json:"requestType"`
	IDToken     string `json:"idToken,omitempty"`
	Email       string `json:"email,omitempty"`
}

type firebaseDeleteRequest struct {
	IDToken string `json:"idToken"`
}

type firebaseErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewFirebaseProvider validates the configuration and constructs a FirebaseProvider.
func NewFirebaseProvider(cfg FirebaseProviderConfig) (*FirebaseProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("identity: firebase api key required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultFirebaseBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &FirebaseProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		clock:      clock,
	}, nil
}

// CreateAccount signs a new email/password account up.
func (p *FirebaseProvider) CreateAccount(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidInput
	}
	var response firebaseCredentialResponse
	err := p.call(ctx, "accounts:signUp", firebaseCredentialRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &response)
	if err != nil {
		return Session{}, err
	}
	return p.sessionFrom(response, email), nil
}

// SignIn exchanges an email and password for an ID token.
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	var response firebaseCredentialResponse
	err := p.call(ctx, "accounts:signInWithPassword", firebaseCredentialRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &response)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	return p.sessionFrom(response, email), nil
}

// SendEmailVerification asks Firebase to email a verification link.
func (p *FirebaseProvider) SendEmailVerification(ctx context.Context, session Session) error {
	if session.IDToken == "" {
		return ErrInvalidInput
	}
	return p.call(ctx, "accounts:sendOobCode", firebaseOobRequest{
		RequestType: "VERIFY_EMAIL",
		IDToken:     session.IDToken,
	}, nil)
}

// SendPasswordReset asks Firebase to email a password reset link.
func (p *FirebaseProvider) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidInput
	}
	return p.call(ctx, "accounts:sendOobCode", firebaseOobRequest{
		RequestType: "PASSWORD_RESET",
		Email:       email,
	}, nil)
}

// DeleteAccount removes the signed-in account.
func (p *FirebaseProvider) DeleteAccount(ctx context.Context, session Session) error {
	if session.IDToken == "" {
		return ErrAccountNotFound
	}
	return p.call(ctx, "accounts:delete", firebaseDeleteRequest{IDToken: session.IDToken}, nil)
}

func (p *FirebaseProvider) sessionFrom(response firebaseCredentialResponse, fallbackEmail string) Session {
	email := response.Email
	if email == "" {
		email = fallbackEmail
	}
	session := Session{
		Account: Account{
			UID:   response.LocalID,
			Email: email,
		},
		IDToken: response.IDToken,
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(response.ExpiresIn)); err == nil && seconds > 0 {
		session.ExpiresAt = p.clock().UTC().Add(time.Duration(seconds) * time.Second)
	}
	return session
}

func (p *FirebaseProvider) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := p.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errFirebaseUpstream, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		var envelope firebaseErrorEnvelope
		_ = json.NewDecoder(response.Body).Decode(&envelope)
		return p.mapError(method, response.StatusCode, envelope.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", errFirebaseUpstream, method, err)
	}
	return nil
}

// mapError folds Identity Toolkit error codes into the provider sentinels.
// Codes may carry a detail suffix such as "WEAK_PASSWORD : Password should be ...".
func (p *FirebaseProvider) mapError(method string, status int, message string) error {
	code := message
	if index := strings.Index(code, " "); index >= 0 {
		code = code[:index]
	}
	switch code {
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return ErrAccountNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return ErrInvalidCredentials
	case "INVALID_EMAIL", "MISSING_PASSWORD", "WEAK_PASSWORD":
		return fmt.Errorf("%w: %s", ErrInvalidInput, message)
	}
	p.logger.Debug("firebase request rejected",
		zap.String("method", method),
		zap.Int("status", status),
		zap.String("code", message),
	)
	return fmt.Errorf("%w: %s returned %d %s", errFirebaseUpstream, method, status, message)
}
