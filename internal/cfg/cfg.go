package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config holds all service configuration, bound to flags and filled from
// WARDEN_* environment variables.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	// Ticket system backend.
	BackendBaseURL    string
	BackendUsername   string
	BackendPassword   string
	SessionTTLSeconds int
	SessionOverride   string

	// LLM provider.
	ClaudeAPIKey string
	ClaudeModel  string

	// Optional collaborators; empty endpoints disable them.
	KBEndpoint     string
	KBStoreName    string
	VisualEndpoint string
	LogMonitorURL  string

	DatabaseURL     string
	SlackWebhookURL string

	// Incident enrichment pool.
	IncidentWorkers    int
	IncidentQueueDepth int

	// Ticket write-back defaults.
	DefaultQueueID    int
	DefaultPriorityID int
	DefaultStateID    int
	DefaultSubject    string

	// Comma-separated boilerplate fragments; articles containing any of
	// them are classified as automatic notifications.
	ArticleDenylist string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")

	fs.StringVar(&c.BackendBaseURL, "backend-base-url", "", "ticket system REST base URL")
	fs.StringVar(&c.BackendUsername, "backend-username", "", "ticket system agent login")
	fs.StringVar(&c.BackendPassword, "backend-password", "", "ticket system agent password")
	fs.IntVar(&c.SessionTTLSeconds, "session-ttl-seconds", 3300, "backend session lifetime before re-authentication (1..86400)")
	fs.StringVar(&c.SessionOverride, "session-id", "", "fixed backend session ID; bypasses login entirely")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")

	fs.StringVar(&c.KBEndpoint, "kb-endpoint", "", "knowledge base service URL for retrieval context (empty = disabled)")
	fs.StringVar(&c.KBStoreName, "kb-store-name", "tickets-kb", "knowledge base store name")
	fs.StringVar(&c.VisualEndpoint, "visual-endpoint", "", "visual analysis service URL (empty = disabled)")
	fs.StringVar(&c.LogMonitorURL, "log-monitor-url", "", "log correlation service URL (empty = disabled)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")

	fs.IntVar(&c.IncidentWorkers, "incident-workers", 5, "workers for incident enrichment (1..64)")
	fs.IntVar(&c.IncidentQueueDepth, "incident-queue-depth", 32, "queued enrichments before delegation is rejected (1..1024)")

	fs.IntVar(&c.DefaultQueueID, "default-queue-id", 1, "queue applied on write-back when the webhook omits one")
	fs.IntVar(&c.DefaultPriorityID, "default-priority-id", 3, "priority applied on write-back when the webhook omits one")
	fs.IntVar(&c.DefaultStateID, "default-state-id", 4, "state applied on write-back when the webhook omits one")
	fs.StringVar(&c.DefaultSubject, "default-subject", "Automatic Diagnosis (AI)", "article subject when the webhook omits one")

	fs.StringVar(&c.ArticleDenylist, "article-denylist", "", "comma-separated boilerplate fragments marking articles as automatic notifications")
}

// ArticleDenylistItems splits the configured denylist into trimmed,
// non-empty fragments.
func (c *Config) ArticleDenylistItems() []string {
	var items []string
	for _, item := range strings.Split(c.ArticleDenylist, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.BackendBaseURL == "" {
		errs = append(errs, errors.New("BACKEND_BASE_URL is required"))
	}

	// Credentials may be omitted only when a fixed session is supplied.
	if c.SessionOverride == "" && (c.BackendUsername == "" || c.BackendPassword == "") {
		errs = append(errs, errors.New("BACKEND_USERNAME and BACKEND_PASSWORD are required unless SESSION_ID is set"))
	}

	if c.SessionTTLSeconds <= 0 || c.SessionTTLSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid SESSION_TTL_SECONDS %d (must be 1..86400)", c.SessionTTLSeconds))
	}

	// Claude API key is required for LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	// Claude model is required for LLM access
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	if c.KBEndpoint != "" && c.KBStoreName == "" {
		errs = append(errs, errors.New("KB_STORE_NAME is required when KB_ENDPOINT is set"))
	}

	if c.IncidentWorkers <= 0 || c.IncidentWorkers > 64 {
		errs = append(errs, fmt.Errorf("invalid INCIDENT_WORKERS %d (must be 1..64)", c.IncidentWorkers))
	}
	if c.IncidentQueueDepth <= 0 || c.IncidentQueueDepth > 1024 {
		errs = append(errs, fmt.Errorf("invalid INCIDENT_QUEUE_DEPTH %d (must be 1..1024)", c.IncidentQueueDepth))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
