// Package engine defines the keyed record storage shared by the quota ledger,
// the appointment scheduler and the history buffer.
package engine

import "errors"

// ErrInvalidIdentity is returned when an identity lacks a client key or a
// persona id.
var ErrInvalidIdentity = errors.New("identity requires client key and persona id")

// Identity addresses all per-user-per-persona state.
type Identity struct {
	ClientKey string
	PersonaID string
}

// Validate reports whether both halves of the identity are present.
func (id Identity) Validate() error {
	if id.ClientKey == "" || id.PersonaID == "" {
		return ErrInvalidIdentity
	}
	return nil
}

func (id Identity) String() string {
	return id.ClientKey + "/" + id.PersonaID
}

// Store is a keyed table of records of type V.
// The in-memory Table satisfies it; an external store can be substituted
// without touching the ledger, scheduler or buffer.
type Store[V any] interface {
	// Get returns the record for id and whether it exists.
	Get(id Identity) (V, bool)
	// Set stores val for id, overwriting any existing record.
	Set(id Identity, val V)
	// Delete removes the record for id.
	Delete(id Identity)
	// Update runs fn with the current record (zero value and false when
	// absent) and stores its result. The read and the write are atomic with
	// respect to other Update calls on the same store.
	Update(id Identity, fn func(cur V, ok bool) V) V
}
