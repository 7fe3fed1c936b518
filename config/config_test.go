package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:  "single service - solver-runner",
			input: "solver-runner",
			expected: map[ServiceMode]bool{
				ServiceModeSolverRunner: true,
			},
			expectError: false,
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "multiple services - http and solver-runner",
			input: "http,solver-runner",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:         true,
				ServiceModeSolverRunner: true,
			},
			expectError: false,
		},
		{
			name:  "all services",
			input: "http,solver-runner,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:         true,
				ServiceModeSolverRunner: true,
				ServiceModeReaper:       true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " http , solver-runner , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:         true,
				ServiceModeSolverRunner: true,
				ServiceModeReaper:       true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "http,http,solver-runner",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:         true,
				ServiceModeSolverRunner: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,invalid-service",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "mixed valid and invalid",
			input:       "http,solver-runner,invalid",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_GetEnabledServices(t *testing.T) {
	tests := []struct {
		name        string
		services    string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "default configuration",
			services: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:     "multiple services",
			services: "http,solver-runner",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:         true,
				ServiceModeSolverRunner: true,
			},
			expectError: false,
		},
		{
			name:        "invalid configuration",
			services:    "invalid-service",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}
			result, err := cfg.GetEnabledServices()

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_MODE", "oauth")
	t.Setenv("AUTH_INSTRUCTOR_GROUP", "cn=instructors,ou=groups,dc=example,dc=edu")
	t.Setenv("AUTH_STUDENT_GROUP", "cn=or-students,ou=groups,dc=example,dc=edu")
	t.Setenv("AUTH_SESSION_TTL", "8h")
	t.Setenv("OAUTH_CLIENT_ID", "optilab-client")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_REDIRECT_URL", "https://optilab.example.edu/api/auth/callback")
	t.Setenv("OAUTH_DISCOVERY_URL", "https://login.example.edu/.well-known/openid-configuration")
	t.Setenv("OAUTH_SCOPE", "openid profile email")
	t.Setenv("DEV_AUTH_USER_ID", "dev-user")
	t.Setenv("DEV_AUTH_EMAIL", "dev@example.edu")
	t.Setenv("DEV_AUTH_GROUPS", "instructors;tas")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := AuthConfig{
		Enabled: true,
		Mode:    AuthModeOAuth,
		OAuth: OAuthConfig{
			ClientID:     "optilab-client",
			ClientSecret: "super-secret",
			RedirectURL:  "https://optilab.example.edu/api/auth/callback",
			Scope:        "openid profile email",
			DiscoveryURL: "https://login.example.edu/.well-known/openid-configuration",
		},
		DevAuth: DevAuthConfig{
			UserID: "dev-user",
			Email:  "dev@example.edu",
			Groups: []string{"instructors", "tas"},
		},
		InstructorGroup: "cn=instructors,ou=groups,dc=example,dc=edu",
		StudentGroup:    "cn=or-students,ou=groups,dc=example,dc=edu",
		SessionTTL:      8 * time.Hour,
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
}

func TestAppConfig_ParseSolverEnv(t *testing.T) {
	t.Setenv("SOLVER_ENGINE", "AMPL")
	t.Setenv("SOLVER_AMPL_BINARY", "/opt/ampl/ampl")
	t.Setenv("SOLVER_WORK_DIR", "/var/lib/optilab/solves")
	t.Setenv("SOLVER_DEFAULT_SOLVER", "cbc")
	t.Setenv("SOLVER_DEFAULT_TIMEOUT", "120")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Solver.Engine != EngineKindAMPL {
		t.Errorf("expected engine %q, got %q", EngineKindAMPL, cfg.Solver.Engine)
	}
	if cfg.Solver.AMPLBinary != "/opt/ampl/ampl" {
		t.Errorf("unexpected binary: %q", cfg.Solver.AMPLBinary)
	}
	if cfg.Solver.WorkDir != "/var/lib/optilab/solves" {
		t.Errorf("unexpected work dir: %q", cfg.Solver.WorkDir)
	}
	if cfg.Solver.DefaultSolver != "cbc" {
		t.Errorf("unexpected default solver: %q", cfg.Solver.DefaultSolver)
	}
	if cfg.Solver.DefaultTimeout != 120 {
		t.Errorf("unexpected default timeout: %d", cfg.Solver.DefaultTimeout)
	}
}

func TestEngineKind_UnmarshalText(t *testing.T) {
	tests := []struct {
		input       string
		expected    EngineKind
		expectError bool
	}{
		{input: "ampl", expected: EngineKindAMPL},
		{input: "demo", expected: EngineKindDemo},
		{input: " Demo ", expected: EngineKindDemo},
		{input: "glpsol", expectError: true},
		{input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var kind EngineKind
			err := kind.UnmarshalText([]byte(tt.input))

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q but got none", tt.input)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if kind != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, kind)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name                 string
		services             string
		expectedHTTP         bool
		expectedSolverRunner bool
		expectedReaper       bool
	}{
		{
			name:                 "default - http only",
			services:             "http",
			expectedHTTP:         true,
			expectedSolverRunner: false,
			expectedReaper:       false,
		},
		{
			name:                 "http and solver-runner",
			services:             "http,solver-runner",
			expectedHTTP:         true,
			expectedSolverRunner: true,
			expectedReaper:       false,
		},
		{
			name:                 "all services",
			services:             "http,solver-runner,reaper",
			expectedHTTP:         true,
			expectedSolverRunner: true,
			expectedReaper:       true,
		},
		{
			name:                 "solver-runner only",
			services:             "solver-runner",
			expectedHTTP:         false,
			expectedSolverRunner: true,
			expectedReaper:       false,
		},
		{
			name:                 "reaper only",
			services:             "reaper",
			expectedHTTP:         false,
			expectedSolverRunner: false,
			expectedReaper:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}

			if cfg.IsSolverRunnerEnabled() != tt.expectedSolverRunner {
				t.Errorf(
					"IsSolverRunnerEnabled(): expected %v, got %v",
					tt.expectedSolverRunner,
					cfg.IsSolverRunnerEnabled(),
				)
			}

			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v, got %v", tt.expectedReaper, cfg.IsReaperEnabled())
			}
		})
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := AppConfig{Services: "invalid-service"}

	// All methods should return false when configuration is invalid
	if cfg.IsHTTPServerEnabled() != false {
		t.Errorf("IsHTTPServerEnabled() with invalid config: expected false, got true")
	}

	if cfg.IsSolverRunnerEnabled() != false {
		t.Errorf("IsSolverRunnerEnabled() with invalid config: expected false, got true")
	}

	if cfg.IsReaperEnabled() != false {
		t.Errorf("IsReaperEnabled() with invalid config: expected false, got true")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{
		ServiceModeHTTP,
		ServiceModeSolverRunner,
		ServiceModeReaper,
	}

	if len(modes) != len(expected) {
		t.Errorf("expected %d service modes, got %d", len(expected), len(modes))
	}

	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestSolverConfig_Sanitize(t *testing.T) {
	cfg := SolverConfig{
		Engine:          "",
		AMPLBinary:      "  ",
		TranscriptLimit: -1,
		DemoDelay:       -time.Second,
		DefaultSolver:   "  SIMPLEX9000 ",
		DefaultTimeout:  7200,
	}

	cfg.Sanitize()

	if cfg.Engine != EngineKindDemo {
		t.Errorf("expected empty engine to fall back to demo, got %q", cfg.Engine)
	}
	if cfg.AMPLBinary != "ampl" {
		t.Errorf("expected blank binary to fall back to ampl, got %q", cfg.AMPLBinary)
	}
	if cfg.TranscriptLimit != 0 {
		t.Errorf("expected negative transcript limit to clamp to 0, got %d", cfg.TranscriptLimit)
	}
	if cfg.DemoDelay != 0 {
		t.Errorf("expected negative demo delay to clamp to 0, got %v", cfg.DemoDelay)
	}
	if cfg.DefaultSolver != "highs" {
		t.Errorf("expected unknown default solver to fall back to highs, got %q", cfg.DefaultSolver)
	}
	if cfg.DefaultTimeout != 300 {
		t.Errorf("expected out-of-range timeout to fall back to 300, got %d", cfg.DefaultTimeout)
	}

	// A known solver and in-range timeout pass through unchanged.
	cfg = SolverConfig{DefaultSolver: "CBC", DefaultTimeout: 60}
	cfg.Sanitize()

	if cfg.DefaultSolver != "cbc" {
		t.Errorf("expected solver to be lowercased, got %q", cfg.DefaultSolver)
	}
	if cfg.DefaultTimeout != 60 {
		t.Errorf("expected in-range timeout to be kept, got %d", cfg.DefaultTimeout)
	}
}

func TestRunnerConfig_Sanitize(t *testing.T) {
	cfg := RunnerConfig{
		Concurrency:        0,
		JobLease:           time.Second,
		CancelPollInterval: time.Millisecond,
		MaxRequeues:        -1,
	}

	cfg.Sanitize()

	if cfg.Concurrency != 1 {
		t.Errorf("expected concurrency to clamp to 1, got %d", cfg.Concurrency)
	}
	if cfg.JobLease != 5*time.Second {
		t.Errorf("expected job lease to clamp to 5s, got %v", cfg.JobLease)
	}
	if cfg.CancelPollInterval != 250*time.Millisecond {
		t.Errorf("expected cancel poll interval to clamp to 250ms, got %v", cfg.CancelPollInterval)
	}
	if cfg.MaxRequeues != 0 {
		t.Errorf("expected max requeues to clamp to 0, got %d", cfg.MaxRequeues)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        time.Second,
		QueuedMaxAge:    time.Minute,
		CompletedMaxAge: time.Minute,
		FailedMaxAge:    time.Minute,
		CancelledMaxAge: time.Minute,
		RunsMaxAge:      time.Hour,
		BatchSize:       100000,
	}

	cfg.Sanitize()

	if cfg.Interval != time.Minute {
		t.Errorf("expected interval to clamp to 1m, got %v", cfg.Interval)
	}
	if cfg.QueuedMaxAge != 5*time.Minute {
		t.Errorf("expected queued max age to clamp to 5m, got %v", cfg.QueuedMaxAge)
	}
	if cfg.CompletedMaxAge != time.Hour {
		t.Errorf("expected completed max age to clamp to 1h, got %v", cfg.CompletedMaxAge)
	}
	if cfg.CancelledMaxAge != time.Hour {
		t.Errorf("expected cancelled max age to clamp to 1h, got %v", cfg.CancelledMaxAge)
	}
	if cfg.RunsMaxAge != 24*time.Hour {
		t.Errorf("expected runs max age to clamp to 24h, got %v", cfg.RunsMaxAge)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size to clamp to 10000, got %d", cfg.BatchSize)
	}
}

func TestObservabilityConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityConfig{
		Enabled: true,
		Address: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityConfig{
		Enabled: true,
		Address: " statsd:1234 ",
		Prefix:  " optilab ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.Address != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.Address)
	}
	if cfg.Prefix != "optilab" {
		t.Fatalf("expected prefix to be trimmed, got %q", cfg.Prefix)
	}
}

func TestAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         AuthConfig
		expectError string
	}{
		{
			name: "disabled auth always validates",
			cfg:  AuthConfig{Enabled: false},
		},
		{
			name: "mock mode needs no oauth settings",
			cfg:  AuthConfig{Enabled: true, Mode: AuthModeMock},
		},
		{
			name: "oauth without discovery url",
			cfg: AuthConfig{
				Enabled:         true,
				Mode:            AuthModeOAuth,
				InstructorGroup: "instructors",
			},
			expectError: "OAUTH_DISCOVERY_URL",
		},
		{
			name: "oauth without instructor group",
			cfg: AuthConfig{
				Enabled: true,
				Mode:    AuthModeOAuth,
				OAuth:   OAuthConfig{DiscoveryURL: "https://login.example.edu/.well-known/openid-configuration"},
			},
			expectError: "AUTH_INSTRUCTOR_GROUP",
		},
		{
			name: "complete oauth configuration",
			cfg: AuthConfig{
				Enabled:         true,
				Mode:            AuthModeOAuth,
				OAuth:           OAuthConfig{DiscoveryURL: "https://login.example.edu/.well-known/openid-configuration"},
				InstructorGroup: "instructors",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.expectError == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("expected error mentioning %q but got none", tt.expectError)
			}
			if got := err.Error(); !strings.Contains(got, tt.expectError) {
				t.Errorf("expected error to mention %q, got %q", tt.expectError, got)
			}
		})
	}
}
