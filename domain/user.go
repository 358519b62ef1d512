// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// User is an externally-owned identity. The core only reads the name for
// payload enrichment and owns the Online/LastSeen presence flags.
type User struct {
	ID       string
	Name     string
	Email    string
	Online   bool
	LastSeen time.Time
}

// PresenceEntry is the externally observable presence state of a user.
type PresenceEntry struct {
	UserID   string
	Online   bool
	LastSeen time.Time
}
