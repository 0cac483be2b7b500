// Package llm defines the boundary to the generative-model backend. The
// core consumes raw text completions only; all parsing of the model's
// structured-or-freeform output happens at the caller.
package llm

import (
	"context"
	"strings"

	"github.com/linnemanlabs/warden/internal/ticket"
)

// Retriever is an opaque handle to a knowledge store the model client may
// consult to ground a diagnosis. Obtained best-effort; a nil Retriever
// means "diagnose without retrieval".
type Retriever interface {
	// Name identifies the underlying store, for logging.
	Name() string
	// Retrieve returns grounding snippets relevant to the query.
	Retrieve(ctx context.Context, query string) (string, error)
}

// Provider is the interface for any generative-model backend.
type Provider interface {
	// Diagnose classifies and diagnoses a ticket, returning the model's
	// raw text. Expected to be a JSON object (possibly markdown-fenced)
	// but may be anything; the pipeline resolves that once.
	Diagnose(ctx context.Context, ticketText string, retrieval Retriever) (string, error)

	// ExtractEntity identifies the real affected customer from ticket
	// metadata plus message text, returning the model's raw text.
	ExtractEntity(ctx context.Context, meta *ticket.Metadata, ticketText string) (string, error)
}

// StripFences removes markdown code-fence wrapping from a model response so
// the remainder can be fed to a JSON decoder. Handles ```json ... ``` as
// well as bare backtick fences; non-fenced input is returned trimmed.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string on the opening fence line, e.g. "json"
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{[\"") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
