package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGrouping   = "autocat/grouping/v1"
	DomainMembership = "autocat/membership/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a stable identity for a grouping definition.
// Two definitions with the same canonical form share a fingerprint, so logs
// and run results can tell whether a grouping changed between runs.
func Fingerprint(definition IRObject) (string, error) {
	canonical, err := MarshalCanonical(definition)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainGrouping, canonical), nil
}

// MembershipDigest hashes a membership row set independent of row order.
// Used to compare membership before and after a run.
func MembershipDigest(rows []MembershipRow) (string, error) {
	sorted := SortRows(rows)
	arr := make(IRArray, len(sorted))
	for i, r := range sorted {
		arr[i] = r.IRObject()
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("membership digest: %w", err)
	}
	return hashWithDomain(DomainMembership, canonical), nil
}
