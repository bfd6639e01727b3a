package sdk

import (
	"context"
	"errors"

	"github.com/celerix-dev/celerix-companion/pkg/schema"
)

var (
	// ErrRejected is returned when the gateway refuses a request as invalid.
	ErrRejected = errors.New("request rejected")
	// ErrRateLimited is returned when the gateway throttles the client.
	ErrRateLimited = errors.New("rate limited")
)

// --- Functional Interfaces (Interface Segregation) ---

// Chatter sends messages to a persona.
type Chatter interface {
	Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error)
}

// StatusReader reads the quota and appointment state of a conversation.
type StatusReader interface {
	Status(ctx context.Context, clientKey, personaID string) (schema.StatusResponse, error)
}

// PersonaLister enumerates the personas the gateway serves.
type PersonaLister interface {
	Personas(ctx context.Context) ([]schema.PersonaSummary, error)
}

// --- Composite Interfaces ---

// Companion is the full client surface of the chat gateway.
type Companion interface {
	Chatter
	StatusReader
	PersonaLister

	Health(ctx context.Context) error

	// Session pins a client key and persona for repeated calls.
	Session(clientKey, personaID string) *Session
}
