package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"optilab"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"optilab"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/api/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"dev-user"`
	Email  string   `env:"EMAIL"   envDefault:"dev@example.edu"`
	Groups []string `env:"GROUPS"  envDefault:"instructors"     envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
//
// Authentication is off by default: the platform is usable anonymously in a
// single-classroom deployment. Enabling it gates mutating endpoints behind a
// session and instructor-only endpoints behind the instructor group.
type AuthConfig struct {
	// Enabled turns session authentication on.
	Enabled bool `env:"AUTH_ENABLED" envDefault:"false"`

	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// InstructorGroup is the IdP group whose members may manage models and
	// purge other students' jobs.
	InstructorGroup string `env:"AUTH_INSTRUCTOR_GROUP"`

	// StudentGroup is the IdP group for regular course members. Empty means
	// any authenticated user counts as a student.
	StudentGroup string `env:"AUTH_STUDENT_GROUP"`

	// SessionTTL is how long a login session stays valid.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"12h"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.InstructorGroup = strings.TrimSpace(a.InstructorGroup)
	a.StudentGroup = strings.TrimSpace(a.StudentGroup)
	if a.SessionTTL < time.Minute {
		a.SessionTTL = time.Minute
	}
}

// Validate checks that enabled auth has everything it needs to start.
// Called during bootstrap; a disabled auth section always validates.
func (a *AuthConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.Mode == AuthModeMock {
		return nil
	}
	if a.OAuth.DiscoveryURL == "" {
		return errors.New("OAUTH_DISCOVERY_URL is required when auth is enabled")
	}
	if a.InstructorGroup == "" {
		return errors.New("AUTH_INSTRUCTOR_GROUP is required when auth is enabled")
	}
	return nil
}
