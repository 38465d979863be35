// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs session tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; verifies session tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on session tokens (e.g. "idp").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTL is the signed-in session lifetime (e.g. "12h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// MaxFailedLogins is how many consecutive failures lock an account.
	MaxFailedLogins int `mapstructure:"MAX_FAILED_LOGINS"`
	// LockoutDuration is how long a locked account stays locked (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`

	// DefaultScheme is the local-credential scheme name tenants fall back to.
	DefaultScheme string `mapstructure:"DEFAULT_SCHEME"`
	// TenantSchemes maps tenant identifiers to scheme names, comma-separated
	// "tenant=scheme" pairs (e.g. "finbuckle=demoidsrv,acme=aad").
	TenantSchemes string `mapstructure:"TENANT_SCHEMES"`
	// ExternalProviders configures OIDC schemes as semicolon-separated entries
	// of "name|displayName|issuerURL|clientID|clientSecret|redirectURL".
	ExternalProviders string `mapstructure:"EXTERNAL_PROVIDERS"`
	// ExternalStateTTL bounds how long an external challenge may stay pending.
	ExternalStateTTL string `mapstructure:"EXTERNAL_STATE_TTL"`

	// Clients registers relying parties as semicolon-separated entries of
	// "id|name|postLogoutURI[ postLogoutURI...]".
	Clients string `mapstructure:"CLIENTS"`
	// LogoutContextTTL bounds how long a pending logoutId stays valid.
	LogoutContextTTL string `mapstructure:"LOGOUT_CONTEXT_TTL"`
	// LoggedOutURL is the default landing page after logout.
	LoggedOutURL string `mapstructure:"LOGGED_OUT_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
}

// ProviderConfig is one parsed EXTERNAL_PROVIDERS entry.
type ProviderConfig struct {
	Name         string
	DisplayName  string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// ClientConfig is one parsed CLIENTS entry.
type ClientConfig struct {
	ID                     string
	Name                   string
	PostLogoutRedirectURIs []string
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "idp")
	v.SetDefault("JWT_AUDIENCE", "idp-session")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAX_FAILED_LOGINS", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("DEFAULT_SCHEME", "local")
	v.SetDefault("TENANT_SCHEMES", "")
	v.SetDefault("EXTERNAL_PROVIDERS", "")
	v.SetDefault("EXTERNAL_STATE_TTL", "10m")
	v.SetDefault("CLIENTS", "")
	v.SetDefault("LOGOUT_CONTEXT_TTL", "5m")
	v.SetDefault("LOGGED_OUT_URL", "/")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTLP_ENDPOINT", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DefaultScheme == "" {
		return nil, errors.New("config: DEFAULT_SCHEME must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if _, err := cfg.TenantSchemeTable(); err != nil {
		return nil, err
	}
	if _, err := cfg.ExternalProviderList(); err != nil {
		return nil, err
	}
	if _, err := cfg.ClientList(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SessionDuration parses SessionTTL. Returns 12h if unset or invalid.
func (c *Config) SessionDuration() time.Duration {
	return parseDuration(c.SessionTTL, 12*time.Hour)
}

// LockoutWindow parses LockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutWindow() time.Duration {
	return parseDuration(c.LockoutDuration, 15*time.Minute)
}

// ExternalStateWindow parses ExternalStateTTL. Returns 10m if unset or invalid.
func (c *Config) ExternalStateWindow() time.Duration {
	return parseDuration(c.ExternalStateTTL, 10*time.Minute)
}

// LogoutContextWindow parses LogoutContextTTL. Returns 5m if unset or invalid.
func (c *Config) LogoutContextWindow() time.Duration {
	return parseDuration(c.LogoutContextTTL, 5*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TenantSchemeTable parses TENANT_SCHEMES into a tenant->scheme map.
func (c *Config) TenantSchemeTable() (map[string]string, error) {
	out := make(map[string]string)
	if c == nil || c.TenantSchemes == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.TenantSchemes, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tenant, scheme, found := strings.Cut(pair, "=")
		tenant = strings.TrimSpace(tenant)
		scheme = strings.TrimSpace(scheme)
		if !found || tenant == "" || scheme == "" {
			return nil, fmt.Errorf("config: TENANT_SCHEMES entry %q must be tenant=scheme", pair)
		}
		out[tenant] = scheme
	}
	return out, nil
}

// ExternalProviderList parses EXTERNAL_PROVIDERS into provider configs.
func (c *Config) ExternalProviderList() ([]ProviderConfig, error) {
	if c == nil || c.ExternalProviders == "" {
		return nil, nil
	}
	var out []ProviderConfig
	for _, entry := range strings.Split(c.ExternalProviders, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 6 {
			return nil, fmt.Errorf("config: EXTERNAL_PROVIDERS entry %q must have 6 |-separated fields", entry)
		}
		p := ProviderConfig{
			Name:         strings.TrimSpace(parts[0]),
			DisplayName:  strings.TrimSpace(parts[1]),
			IssuerURL:    strings.TrimSpace(parts[2]),
			ClientID:     strings.TrimSpace(parts[3]),
			ClientSecret: strings.TrimSpace(parts[4]),
			RedirectURL:  strings.TrimSpace(parts[5]),
		}
		if p.Name == "" || p.IssuerURL == "" || p.ClientID == "" || p.RedirectURL == "" {
			return nil, fmt.Errorf("config: EXTERNAL_PROVIDERS entry %q missing name, issuer, client id, or redirect", entry)
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Name
		}
		out = append(out, p)
	}
	return out, nil
}

// ClientList parses CLIENTS into relying-party configs.
func (c *Config) ClientList() ([]ClientConfig, error) {
	if c == nil || c.Clients == "" {
		return nil, nil
	}
	var out []ClientConfig
	for _, entry := range strings.Split(c.Clients, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) < 2 {
			return nil, fmt.Errorf("config: CLIENTS entry %q must have at least id|name", entry)
		}
		cc := ClientConfig{
			ID:   strings.TrimSpace(parts[0]),
			Name: strings.TrimSpace(parts[1]),
		}
		if cc.ID == "" {
			return nil, fmt.Errorf("config: CLIENTS entry %q has empty id", entry)
		}
		if len(parts) == 3 {
			for _, uri := range strings.Fields(parts[2]) {
				cc.PostLogoutRedirectURIs = append(cc.PostLogoutRedirectURIs, uri)
			}
		}
		out = append(out, cc)
	}
	return out, nil
}
