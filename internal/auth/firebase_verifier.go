package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// DefaultFirebaseJWKSURL serves the keys that sign Firebase Authentication ID tokens.
	DefaultFirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	defaultJWKSCacheTTL  = 10 * time.Minute
	firebaseIssuerPrefix = "https://securetoken.google.com/"
)

// ErrInvalidVerifierConfig reports a FirebaseVerifier built without a project or key source.
var ErrInvalidVerifierConfig = errors.New("auth: invalid firebase verifier config")

var (
	errBlankIDToken   = errors.New("blank id token")
	errNoKeyID        = errors.New("kid header absent")
	errForeignProject = errors.New("issuer belongs to another project")
	errBlankUserID    = errors.New("sub claim absent")
	errNoProjectID    = errors.New("firebase project id required")
	errNoJWKSURL      = errors.New("jwks url required")
)

// FirebaseVerifierConfig bundles configuration required to instantiate a FirebaseVerifier.
type FirebaseVerifierConfig struct {
	ProjectID  string
	JWKSURL    string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Logger     *zap.Logger
	Clock      func() time.Time
}

// FirebaseVerifier checks Firebase Authentication ID tokens against Google's published keys.
type FirebaseVerifier struct {
	projectID string
	issuer    string
	clock     func() time.Time
	keys      *remoteKeySet
}

type firebaseTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	UserID        string `json:"user_id"`
	jwt.RegisteredClaims
}

// NewFirebaseVerifier constructs a verifier with validated configuration.
func NewFirebaseVerifier(cfg FirebaseVerifierConfig) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVerifierConfig, errNoProjectID)
	}
	keysURL := strings.TrimSpace(cfg.JWKSURL)
	if keysURL == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVerifierConfig, errNoJWKSURL)
	}

	keys := &remoteKeySet{
		url:        keysURL,
		client:     cfg.HTTPClient,
		clock:      cfg.Clock,
		defaultTTL: cfg.CacheTTL,
		logger:     cfg.Logger,
	}
	if keys.client == nil {
		keys.client = http.DefaultClient
	}
	if keys.clock == nil {
		keys.clock = time.Now
	}
	if keys.defaultTTL <= 0 {
		keys.defaultTTL = defaultJWKSCacheTTL
	}
	if keys.logger == nil {
		keys.logger = zap.NewNop()
	}

	return &FirebaseVerifier{
		projectID: projectID,
		issuer:    firebaseIssuerPrefix + projectID,
		clock:     keys.clock,
		keys:      keys,
	}, nil
}

// Verify validates the provided ID token and returns the caller identity.
func (v *FirebaseVerifier) Verify(ctx context.Context, rawToken string) (IdentityClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return IdentityClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, errBlankIDToken)
	}

	claims := &firebaseTokenClaims{}
	token, err := jwt.ParseWithClaims(
		rawToken,
		claims,
		func(token *jwt.Token) (any, error) {
			keyID, _ := token.Header["kid"].(string)
			if keyID == "" {
				return nil, errNoKeyID
			}
			return v.keys.publicKey(ctx, keyID)
		},
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return IdentityClaims{}, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	switch {
	case !token.Valid:
		return IdentityClaims{}, fmt.Errorf("%w: signature rejected", ErrInvalidToken)
	case claims.Issuer != v.issuer:
		return IdentityClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, errForeignProject)
	case strings.TrimSpace(claims.Subject) == "":
		return IdentityClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, errBlankUserID)
	}

	return claimsFromRegistered(claims.RegisteredClaims, claims.Email, claims.EmailVerified), nil
}
