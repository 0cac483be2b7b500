package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		BackendBaseURL:        "https://tickets.example/api",
		BackendUsername:       "warden",
		BackendPassword:       "secret",
		SessionTTLSeconds:     3300,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		IncidentWorkers:       5,
		IncidentQueueDepth:    32,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.SessionTTLSeconds != 3300 {
		t.Errorf("SessionTTLSeconds = %d, want 3300", c.SessionTTLSeconds)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.IncidentWorkers != 5 {
		t.Errorf("IncidentWorkers = %d, want 5", c.IncidentWorkers)
	}
	if c.DefaultQueueID != 1 || c.DefaultPriorityID != 3 || c.DefaultStateID != 4 {
		t.Errorf("write-back defaults = %d/%d/%d, want 1/3/4", c.DefaultQueueID, c.DefaultPriorityID, c.DefaultStateID)
	}
	if c.DefaultSubject != "Automatic Diagnosis (AI)" {
		t.Errorf("DefaultSubject = %q", c.DefaultSubject)
	}
	if c.KBStoreName != "tickets-kb" {
		t.Errorf("KBStoreName = %q, want tickets-kb", c.KBStoreName)
	}
	if c.ArticleDenylist != "" {
		t.Errorf("ArticleDenylist = %q, want empty", c.ArticleDenylist)
	}
}

func TestArticleDenylistItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"single", "su solicitud ha sido registrada", []string{"su solicitud ha sido registrada"}},
		{"trims and drops blanks", " ticket creado , , notificación automática ", []string{"ticket creado", "notificación automática"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := Config{ArticleDenylist: tt.raw}
			got := c.ArticleDenylistItems()
			if len(got) != len(tt.want) {
				t.Fatalf("items = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("items[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-backend-base-url", "https://otrs.example/api",
		"-backend-username", "agent",
		"-backend-password", "pw",
		"-session-ttl-seconds", "600",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-incident-workers", "8",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.BackendBaseURL != "https://otrs.example/api" {
		t.Errorf("BackendBaseURL = %q", c.BackendBaseURL)
	}
	if c.SessionTTLSeconds != 600 {
		t.Errorf("SessionTTLSeconds = %d, want 600", c.SessionTTLSeconds)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.ClaudeModel != "claude-opus-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-opus-4-20250514")
	}
	if c.IncidentWorkers != 8 {
		t.Errorf("IncidentWorkers = %d, want 8", c.IncidentWorkers)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	withChanges := func(mut func(c *Config)) Config {
		c := validBase()
		mut(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "base is valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "session override without credentials",
			cfg: withChanges(func(c *Config) {
				c.BackendUsername = ""
				c.BackendPassword = ""
				c.SessionOverride = "fixed-session"
			}),
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       withChanges(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       withChanges(func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS"},
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       withChanges(func(c *Config) { c.ShutdownBudgetSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       withChanges(func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:    "budget is drain plus one",
			cfg:     withChanges(func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds + 1 }),
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       withChanges(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       withChanges(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Backend fields
		{
			name:      "empty backend base url",
			cfg:       withChanges(func(c *Config) { c.BackendBaseURL = "" }),
			wantErr:   true,
			errSubstr: []string{"BACKEND_BASE_URL"},
		},
		{
			name:      "missing credentials without override",
			cfg:       withChanges(func(c *Config) { c.BackendPassword = "" }),
			wantErr:   true,
			errSubstr: []string{"BACKEND_USERNAME and BACKEND_PASSWORD"},
		},
		{
			name:      "session ttl zero",
			cfg:       withChanges(func(c *Config) { c.SessionTTLSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SESSION_TTL_SECONDS"},
		},
		{
			name:      "session ttl above max",
			cfg:       withChanges(func(c *Config) { c.SessionTTLSeconds = 86401 }),
			wantErr:   true,
			errSubstr: []string{"SESSION_TTL_SECONDS"},
		},
		// LLM fields
		{
			name:      "empty claude api key",
			cfg:       withChanges(func(c *Config) { c.ClaudeAPIKey = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name:      "empty claude model",
			cfg:       withChanges(func(c *Config) { c.ClaudeModel = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		// Collaborators
		{
			name:      "kb endpoint without store name",
			cfg:       withChanges(func(c *Config) { c.KBEndpoint = "http://kb"; c.KBStoreName = "" }),
			wantErr:   true,
			errSubstr: []string{"KB_STORE_NAME"},
		},
		// Pool sizing
		{
			name:      "workers zero",
			cfg:       withChanges(func(c *Config) { c.IncidentWorkers = 0 }),
			wantErr:   true,
			errSubstr: []string{"INCIDENT_WORKERS"},
		},
		{
			name:      "workers above max",
			cfg:       withChanges(func(c *Config) { c.IncidentWorkers = 65 }),
			wantErr:   true,
			errSubstr: []string{"INCIDENT_WORKERS"},
		},
		{
			name:      "queue depth zero",
			cfg:       withChanges(func(c *Config) { c.IncidentQueueDepth = 0 }),
			wantErr:   true,
			errSubstr: []string{"INCIDENT_QUEUE_DEPTH"},
		},
		// Error accumulation: all fields invalid
		{
			name:    "all fields invalid",
			cfg:     Config{},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT",
				"BACKEND_BASE_URL", "SESSION_TTL_SECONDS", "CLAUDE_API_KEY",
				"CLAUDE_MODEL", "INCIDENT_WORKERS", "INCIDENT_QUEUE_DEPTH",
			},
		},
		// Extreme values
		{
			name: "extreme negative values",
			cfg: withChanges(func(c *Config) {
				c.DrainSeconds = math.MinInt32
				c.ShutdownBudgetSeconds = math.MinInt32
				c.APIPort = math.MinInt32
			}),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, ttl, workers, depth int
		baseURL, user, pass, override            string
	}{
		{60, 90, 8080, 3300, 5, 32, "https://t.example", "u", "p", ""},
		{1, 2, 1, 1, 1, 1, "https://t.example", "u", "p", ""},
		{299, 300, 65535, 86400, 64, 1024, "https://t.example", "", "", "sess"},
		{0, 0, 0, 0, 0, 0, "", "", "", ""},
		{-1, -1, -1, -1, -1, -1, "", "", "", ""},
		{150, 100, 8080, 3300, 5, 32, "https://t.example", "u", "p", ""},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, "", "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.ttl, s.workers, s.depth, s.baseURL, s.user, s.pass, s.override)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, ttl, workers, depth int, baseURL, user, pass, override string) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			SessionTTLSeconds:     ttl,
			IncidentWorkers:       workers,
			IncidentQueueDepth:    depth,
			BackendBaseURL:        baseURL,
			BackendUsername:       user,
			BackendPassword:       pass,
			SessionOverride:       override,
			ClaudeAPIKey:          "k",
			ClaudeModel:           "m",
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		ttlOK := ttl >= 1 && ttl <= 86400
		workersOK := workers >= 1 && workers <= 64
		depthOK := depth >= 1 && depth <= 1024
		backendOK := baseURL != ""
		credsOK := override != "" || (user != "" && pass != "")

		allValid := drainOK && budgetOK && portOK && crossOK && ttlOK && workersOK && depthOK && backendOK && credsOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
