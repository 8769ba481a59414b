package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRow      = "sheetrelay/row/v1"
	DomainRowSet   = "sheetrelay/rowset/v1"
	DomainSnapshot = "sheetrelay/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes the canonical encoding of v under domain.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// SetHash hashes a collection of canonical encodings independent of their
// order: members are sorted bytewise and joined with 0x1e before hashing.
// Duplicates are kept, so {a, a} and {a} differ.
func SetHash(domain string, members [][]byte) string {
	sorted := slices.Clone(members)
	slices.SortFunc(sorted, bytes.Compare)
	return hashWithDomain(domain, bytes.Join(sorted, []byte{0x1e}))
}
