package store

import (
	"crypto/rand"
	"encoding/hex"
)

// NewObjectID generates a fresh 24-hex-character id, per spec.md §3's
// Object record `id` field.
func NewObjectID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err) // crypto/rand.Read only fails if the OS RNG is broken
	}
	return hex.EncodeToString(buf[:])
}

func newContainerID() string { return NewObjectID() }
