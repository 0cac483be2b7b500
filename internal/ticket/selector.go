package ticket

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// creationSubjectRe matches subjects of the notification the backend emits
// when a ticket is opened.
var creationSubjectRe = regexp.MustCompile(`(?i)(new ticket|nuevo ticket|ticket creado|ticket created)`)

// registeredPhrases are the boilerplate fragments of the ticket-creation
// acknowledgment body. Matched case-insensitively.
var registeredPhrases = []string{
	"has been registered",
	"ha sido registrada",
	"ha sido registrado",
}

// defaultDenylist contains body fragments that identify auto-generated
// messages regardless of sender metadata.
var defaultDenylist = []string{
	"this is an automatically generated message",
	"do not reply to this email",
	"este es un mensaje generado automaticamente",
	"este es un mensaje generado automáticamente",
	"no responda a este correo",
}

// Selector picks the one message of a ticket's history that represents the
// genuine customer request, filtering out auto-notifications.
//
// Earlier revisions of this heuristic were positional (last article,
// second-to-last article); ticket systems append a variable number of
// trailing system notifications, so selection is based on sender and
// content classification instead.
type Selector struct {
	denylist []string
}

// NewSelector creates a Selector. Extra denylist fragments are matched
// case-insensitively against message bodies in addition to the built-in set.
func NewSelector(extraDenylist []string) *Selector {
	deny := make([]string, 0, len(defaultDenylist)+len(extraDenylist))
	deny = append(deny, defaultDenylist...)
	for _, d := range extraDenylist {
		if s := strings.ToLower(strings.TrimSpace(d)); s != "" {
			deny = append(deny, s)
		}
	}
	return &Selector{denylist: deny}
}

// IsAutomatic reports whether a message is an auto-generated notification.
func (s *Selector) IsAutomatic(m *Message) bool {
	if m.Sender == SenderSystem {
		return true
	}

	body := strings.ToLower(m.Body)

	if creationSubjectRe.MatchString(m.Subject) {
		for _, phrase := range registeredPhrases {
			if strings.Contains(body, phrase) {
				return true
			}
		}
	}

	for _, fragment := range s.denylist {
		if strings.Contains(body, fragment) {
			return true
		}
	}
	return false
}

// Select returns the most relevant message from the ticket history, or
// false when the input is empty or no message carries any text.
//
// Policy, first non-empty result wins:
//  1. most recent customer message that is not automatic
//  2. earliest message that is not automatic
//  3. first message in sorted order
func (s *Selector) Select(messages []Message) (*Message, bool) {
	candidates := make([]Message, 0, len(messages))
	for _, m := range messages {
		if !m.Empty() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sortMessages(candidates)

	// 1. most recent non-automatic customer message
	for i := len(candidates) - 1; i >= 0; i-- {
		m := &candidates[i]
		if m.Sender == SenderCustomer && !s.IsAutomatic(m) {
			return m, true
		}
	}

	// 2. earliest non-automatic message, covers histories where
	// sender-kind metadata is missing on the opening message
	for i := range candidates {
		if !s.IsAutomatic(&candidates[i]) {
			return &candidates[i], true
		}
	}

	// 3. last resort: the sorted head
	return &candidates[0], true
}

// sortMessages orders ascending by (created_at, id). Messages without a
// creation time fall back to id ordering.
func sortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := &messages[i], &messages[j]
		if !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero() && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// FormatText renders the selected message in the layout the diagnosis
// prompt expects.
func FormatText(m *Message) string {
	return fmt.Sprintf("Subject: %s\n---\nBody:\n%s", m.Subject, m.Body)
}
