// Package keys derives the account authentication key on the client.
// The relay only ever sees a hash of the derived key, never the
// passphrase.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters
const (
	// Argon2Time is the iteration count (time cost)
	Argon2Time = 1
	// Argon2Memory is the memory cost in KB (64MB)
	Argon2Memory = 64 * 1024
	// Argon2Threads is the parallelism degree
	Argon2Threads = 4
	// Argon2KeyLen is the derived key length in bytes
	Argon2KeyLen = 32
)

// DeriveAuthKey derives the account auth key from the passphrase with
// Argon2id. The salt is derived from the account id, so every device of
// the account computes the same key without exchanging salt material.
func DeriveAuthKey(passphrase, accountID string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}

	salt := sha256.Sum256([]byte("extsync-auth/" + accountID))
	key := argon2.IDKey([]byte(passphrase), salt[:], Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
	return key, nil
}

// AuthKeyHash returns the hex SHA-256 of the derived auth key, the value
// stored and compared by the relay.
func AuthKeyHash(authKey []byte) string {
	sum := sha256.Sum256(authKey)
	return hex.EncodeToString(sum[:])
}
