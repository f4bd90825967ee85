package models

import "time"

// Device is a relay-side registration: one browser install under an
// account. AuthKeyHash is the hex SHA-256 of the client-derived auth key;
// the relay never sees the passphrase.
type Device struct {
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	AuthKeyHash string    `json:"auth_key_hash"`
}
