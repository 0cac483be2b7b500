// Package ticket defines the domain model shared across warden: ticket
// classification types, conversation messages, and ticket metadata as
// returned by the ticketing backend.
package ticket

import "time"

// TypeID is the backend's ticket classification.
type TypeID int

const (
	// TypeUnknown means the model did not produce a usable classification.
	TypeUnknown TypeID = 0

	// TypeIncident is a fault in an existing capability.
	TypeIncident TypeID = 10

	// TypeRequest is an action on an existing capability.
	TypeRequest TypeID = 14

	// TypeRequirement is a request for new functionality.
	TypeRequirement TypeID = 19
)

// Valid reports whether t is one of the classifications the backend accepts.
func (t TypeID) Valid() bool {
	return t == TypeIncident || t == TypeRequest || t == TypeRequirement
}

// SenderKind classifies who authored a ticket message.
type SenderKind string

const (
	SenderCustomer SenderKind = "customer"
	SenderSystem   SenderKind = "system"
	SenderAgent    SenderKind = "agent"
)

// Message is one entry in a ticket's conversation history. It is an
// immutable snapshot fetched per request and never persisted.
type Message struct {
	ID        int        `json:"id"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Sender    SenderKind `json:"sender_kind"`
	CreatedAt time.Time  `json:"created_at"`
}

// Empty reports whether the message carries no usable text at all.
func (m *Message) Empty() bool {
	return m.Subject == "" && m.Body == ""
}

// Metadata is the ticket header as returned by the backend read call.
type Metadata struct {
	TicketID     int    `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	Title        string `json:"title"`
	CustomerID   string `json:"customer_id"`
	CustomerUser string `json:"customer_user"`
	Queue        string `json:"queue"`
	State        string `json:"state"`
	Priority     string `json:"priority"`
	Owner        string `json:"owner"`
	Type         string `json:"type"`
	Created      string `json:"created"`
}
