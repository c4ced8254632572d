// Package session persists per-scope conversation data and serializes work on a scope.
package session

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ErrNotFound is returned by Store.Get when a scope has no live session.
var ErrNotFound = errors.New("session not found")

// Forever disables expiry when passed as a TTL.
const Forever time.Duration = 0

// Data is the raw content of one session. Values are opaque bytes; Session encodes them as JSON.
type Data map[string][]byte

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}

	out := make(Data, len(d))
	for k, v := range d {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Equal reports whether d and other hold the same keys and bytes.
func (d Data) Equal(other Data) bool {
	return maps.EqualFunc(d, other, func(a, b []byte) bool {
		return string(a) == string(b)
	})
}

// Store is a session backend. Implementations must be safe for concurrent use and must never
// return data of one scope for another. Backend failures are reported as SessionBackend errors.
type Store interface {
	// Get returns the data stored for scope, or ErrNotFound when absent or expired.
	Get(ctx context.Context, scope update.Scope) (Data, error)
	// Set replaces the data stored for scope. A ttl of Forever disables expiry.
	Set(ctx context.Context, scope update.Scope, data Data, ttl time.Duration) error
	// Remove deletes the data stored for scope. Removing an absent scope is not an error.
	Remove(ctx context.Context, scope update.Scope) error
}

// Ranger is implemented by stores able to enumerate their live sessions.
type Ranger interface {
	Range(ctx context.Context, fn func(scope update.Scope, data Data) error) error
}
