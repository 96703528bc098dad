package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// OutcomeFingerprint identifies a response representation: the exact values
// a model was fit to plus the transform that produced them. Two fits are
// AIC-commensurable only when their fingerprints match.
type OutcomeFingerprint Hash

func (h OutcomeFingerprint) String() string { return Hash(h).String() }

func (h OutcomeFingerprint) IsEmpty() bool { return Hash(h).IsEmpty() }

func (h OutcomeFingerprint) Equals(o OutcomeFingerprint) bool { return h == o }

// ComputeOutcomeFingerprint hashes the transform label together with the
// response column. The label names the representation ("raw", "rescaled
// n=214", ...) so identical numbers reached by different transforms do not
// collide.
func ComputeOutcomeFingerprint(transform string, response []float64) OutcomeFingerprint {
	var data strings.Builder
	data.WriteString(transform)
	data.WriteString("|")
	for _, y := range response {
		fmt.Fprintf(&data, "%.12g,", y)
	}
	return OutcomeFingerprint(NewHash([]byte(data.String())))
}
