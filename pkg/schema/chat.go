// Package schema defines the JSON bodies exchanged between the gateway and
// its clients.
package schema

// Turn is one prior message supplied by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	Character string `json:"character,omitempty"`
	ClientKey string `json:"clientKey,omitempty"`
	History   []Turn `json:"history,omitempty"`
}

// ChatResponse is returned for every accepted message. Reply is empty when
// the turn is withheld; LockedUntilMs is 0 when no appointment is pending.
type ChatResponse struct {
	OK            bool   `json:"ok"`
	Reply         string `json:"reply,omitempty"`
	Remaining     int    `json:"remaining"`
	LockedUntilMs int64  `json:"lockedUntilMs"`
	Silent        bool   `json:"silent,omitempty"`
	Phase         string `json:"phase,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	OK            bool   `json:"ok"`
	Remaining     int    `json:"remaining"`
	LockedUntilMs int64  `json:"lockedUntilMs"`
	Phase         string `json:"phase,omitempty"`
}

// PersonaSummary describes one persona in GET /api/personas.
type PersonaSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
