// Package triage provides the business boundary for Warden's ticket
// diagnosis system. It defines the Service (session handling, article
// selection, write-back, incident delegation), the Pipeline (LLM diagnosis
// with visual escalation), and the domain models.
package triage
