// Package claude implements the llm.Provider interface on the Anthropic
// messages API.
package claude

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/llm"
	"github.com/linnemanlabs/warden/internal/ticket"
)

const (
	responseTokens = 2048
	callTimeout    = 120 * time.Second
)

// Client calls Claude for ticket diagnosis and customer-entity extraction.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
	logger log.Logger
}

// New creates a Claude client with the given API key and model name.
func New(apiKey, model string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logger,
	}
}

// Diagnose classifies a ticket and produces an initial diagnosis. When a
// retrieval handle is present its snippets are folded into the prompt;
// retrieval failures degrade to an ungrounded diagnosis, never an error.
func (c *Client) Diagnose(ctx context.Context, ticketText string, retrieval llm.Retriever) (string, error) {
	return c.send(ctx, diagnosisSystemPrompt, c.diagnoseUserPrompt(ctx, ticketText, retrieval))
}

func (c *Client) diagnoseUserPrompt(ctx context.Context, ticketText string, retrieval llm.Retriever) string {
	user := "TICKET TO ANALYZE:\n" + ticketText

	if retrieval != nil {
		snippets, err := retrieval.Retrieve(ctx, ticketText)
		if err != nil {
			c.logger.Warn(ctx, "retrieval lookup failed, diagnosing without grounding",
				"store", retrieval.Name(), "error", err)
		} else if snippets != "" {
			user = "CONTEXT FROM PREVIOUS CASES:\n" + snippets + "\n\n" + user
		}
	}
	return user
}

// ExtractEntity identifies the real affected customer behind a ticket.
func (c *Client) ExtractEntity(ctx context.Context, meta *ticket.Metadata, ticketText string) (string, error) {
	return c.send(ctx, entitySystemPrompt, entityUserPrompt(meta, ticketText))
}

func entityUserPrompt(meta *ticket.Metadata, ticketText string) string {
	return fmt.Sprintf(`TICKET METADATA:
Title: %s
CustomerID: %s
CustomerUser: %s
Queue: %s

TICKET TEXT:
%s`, meta.Title, meta.CustomerID, meta.CustomerUser, meta.Queue, ticketText)
}

func (c *Client) send(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: responseTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	c.logger.Info(ctx, "model call complete",
		"model", string(c.model),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"duration", time.Since(start).Seconds(),
	)

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("claude: no text content in response")
}

// diagnosisSystemPrompt instructs the model to act as a level-1 support
// engineer and answer with a strict JSON object. The Spanish field names
// are the wire contract consumed by the pipeline parser.
const diagnosisSystemPrompt = `You are a level-1 technical support engineer. Analyze the support ticket you receive, classify it, and produce a clear, action-oriented initial diagnosis.

Classification table (mandatory):
Type | ID | Meaning
Incident | 10 | Failure or degradation of an existing capability
Request | 14 | Action on an existing capability (activate a user, change a value, unlock something)
Requirement | 19 | New functionality or development that does not exist yet

Also assess:
- requires_visual: true only when the ticket hinges on screenshots, layout, or other visual evidence that text analysis cannot resolve.
- criticality_score: integer 0-10 for business impact and urgency.
- is_security_alert: true when the ticket describes a possible security breach, data leak, or active attack.

Output format (strict): reply with ONLY a valid JSON object, no markdown fences, no text outside the object:

{
  "type_id": 10,
  "diagnostico": "...",
  "requires_visual": false,
  "criticality_score": 5,
  "is_security_alert": false
}

Rules:
- "type_id" must be 10, 14 or 19, never empty.
- "diagnostico" must not be empty. If the ticket lacks information, pick the most probable type and say in the diagnosis what is missing.
- Write the diagnosis in the language of the ticket.`

// entitySystemPrompt asks for the real affected customer, which is often a
// third party mentioned in the ticket body rather than the reporter.
const entitySystemPrompt = `You identify the real affected customer behind a support ticket. The reporting user frequently files tickets on behalf of a different organization or person named in the ticket body; prefer the entity the problem is actually about.

Reply with ONLY a valid JSON object:

{
  "entidad": "...",
  "contacto": "...",
  "email": "...",
  "problema_resumido": "...",
  "confianza": 0.0
}

Rules:
- "entidad" is the affected organization or customer name. Use "No identificado" if none can be determined.
- "contacto" and "email" may be empty strings when absent from the ticket.
- "problema_resumido" is a one-sentence summary of the reported problem.
- "confianza" is your confidence in the entity identification, 0.0-1.0.`
