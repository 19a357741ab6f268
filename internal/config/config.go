package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "PSYCHCHAT"
	defaultHTTPAddress       = "0.0.0.0:3000"
	defaultBasePath          = "/api"
	defaultDatabasePath      = "psychchat.db"
	defaultLogLevel          = "info"
	defaultIdentityProvider  = ProviderLocal
	defaultIdentityIssuer    = "psychchat-identity"
	defaultTokenTTLMinutes   = 60
	defaultFirebaseJWKSURL   = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	defaultFirebaseBaseURL   = "https://identitytoolkit.googleapis.com"
	defaultMailRoutingKey    = "mail.outbound"
	defaultHeartbeatSeconds  = 25
	defaultMetricsEnabled    = true
	defaultAllowAdminSignups = false
)

const (
	ProviderLocal    = "local"
	ProviderFirebase = "firebase"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	BasePath       string
	AllowedOrigins []string
	CookieSecure   bool
	DatabasePath   string
	LogLevel       string

	IdentityProvider string
	SigningSecret    string
	IdentityIssuer   string
	TokenTTL         time.Duration

	FirebaseProjectID string
	FirebaseAPIKey    string
	FirebaseJWKSURL   string
	FirebaseBaseURL   string

	MailAMQPURL    string
	MailExchange   string
	MailRoutingKey string

	AllowAdminRegistration bool
	MetricsEnabled         bool
	HeartbeatInterval      time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.base_path", defaultBasePath)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("http.cookie_secure", false)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("identity.provider", defaultIdentityProvider)
	configViper.SetDefault("identity.signing_secret", "")
	configViper.SetDefault("identity.issuer", defaultIdentityIssuer)
	configViper.SetDefault("identity.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("firebase.project_id", "")
	configViper.SetDefault("firebase.api_key", "")
	configViper.SetDefault("firebase.jwks_url", defaultFirebaseJWKSURL)
	configViper.SetDefault("firebase.base_url", defaultFirebaseBaseURL)
	configViper.SetDefault("mail.amqp_url", "")
	configViper.SetDefault("mail.exchange", "")
	configViper.SetDefault("mail.routing_key", defaultMailRoutingKey)
	configViper.SetDefault("registration.allow_admin", defaultAllowAdminSignups)
	configViper.SetDefault("metrics.enabled", defaultMetricsEnabled)
	configViper.SetDefault("realtime.heartbeat_seconds", defaultHeartbeatSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		BasePath:       configViper.GetString("http.base_path"),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		CookieSecure:   configViper.GetBool("http.cookie_secure"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),

		IdentityProvider: strings.ToLower(strings.TrimSpace(configViper.GetString("identity.provider"))),
		SigningSecret:    configViper.GetString("identity.signing_secret"),
		IdentityIssuer:   configViper.GetString("identity.issuer"),
		TokenTTL:         time.Duration(configViper.GetInt("identity.token_ttl_minutes")) * time.Minute,

		FirebaseProjectID: configViper.GetString("firebase.project_id"),
		FirebaseAPIKey:    configViper.GetString("firebase.api_key"),
		FirebaseJWKSURL:   configViper.GetString("firebase.jwks_url"),
		FirebaseBaseURL:   configViper.GetString("firebase.base_url"),

		MailAMQPURL:    configViper.GetString("mail.amqp_url"),
		MailExchange:   configViper.GetString("mail.exchange"),
		MailRoutingKey: configViper.GetString("mail.routing_key"),

		AllowAdminRegistration: configViper.GetBool("registration.allow_admin"),
		MetricsEnabled:         configViper.GetBool("metrics.enabled"),
		HeartbeatInterval:      time.Duration(configViper.GetInt("realtime.heartbeat_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// IdentityAudience is the audience stamped into locally issued ID tokens.
func (c AppConfig) IdentityAudience() string {
	return strings.TrimSpace(c.IdentityIssuer) + "-api"
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_seconds must be positive")
	}
	switch c.IdentityProvider {
	case ProviderLocal:
		if strings.TrimSpace(c.SigningSecret) == "" {
			return fmt.Errorf("identity.signing_secret is required")
		}
		if strings.TrimSpace(c.IdentityIssuer) == "" {
			return fmt.Errorf("identity.issuer is required")
		}
		if c.TokenTTL <= 0 {
			return fmt.Errorf("identity.token_ttl_minutes must be positive")
		}
	case ProviderFirebase:
		if strings.TrimSpace(c.FirebaseProjectID) == "" {
			return fmt.Errorf("firebase.project_id is required")
		}
		if strings.TrimSpace(c.FirebaseAPIKey) == "" {
			return fmt.Errorf("firebase.api_key is required")
		}
		if strings.TrimSpace(c.FirebaseJWKSURL) == "" {
			return fmt.Errorf("firebase.jwks_url is required")
		}
	default:
		return fmt.Errorf("identity.provider must be %q or %q", ProviderLocal, ProviderFirebase)
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
