// Package canonical produces deterministic serializations and digests.
//
// The offline protocol depends on both parties reproducing byte-identical
// signatures from byte-identical payloads, so everything here is a pure
// function of its inputs: JSON encoding of fixed-order structs, no maps with
// nondeterministic iteration, no randomness.
package canonical

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Marshal encodes v as canonical JSON. Callers must pass structs whose field
// order is fixed; map values would break determinism and are rejected by
// convention, not enforcement.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return b, nil
}

// Digest returns the hex SHA3-256 digest of the canonical encoding of v.
func Digest(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// KeyedDigest returns the hex SHA3-256 digest of the canonical encoding of v
// concatenated with key. It stands in for a real signature scheme: anyone who
// holds key can reproduce the digest, nobody else can.
func KeyedDigest(v any, key string) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	h := sha3.New256()
	h.Write(b)
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumHex returns the hex SHA3-256 digest of raw bytes.
func SumHex(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
