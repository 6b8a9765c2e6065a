// Package integrity provides the stable hashes used to deduplicate findings
// and to compare reports across runs. All functions are pure and
// deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint identifies a finding by (domain, normalized title, target URL,
// finding type). Titles are compared case-insensitively after trimming.
// Each field is length-prefixed so no field content can collide with a
// delimiter.
func Fingerprint(domain, title, targetURL, findingType string) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // inputs are short identifiers and URLs
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(strings.ToLower(strings.TrimSpace(domain)))
	writeField(strings.ToLower(strings.TrimSpace(title)))
	writeField(strings.TrimSpace(targetURL))
	writeField(findingType)
	return hex.EncodeToString(h.Sum(nil))
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string.
// The 0x01 prefix separates internal nodes from leaves (RFC 6962).
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the root.
// Leaves must be sorted by the caller for determinism. Empty input returns "";
// a single leaf is its own root. Odd-length levels hash the last node with
// itself.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}

// ReportDigest summarizes a report's set of finding fingerprints. Two runs
// with the same findings share a digest regardless of finding order.
func ReportDigest(fingerprints []string) string {
	sorted := make([]string, len(fingerprints))
	copy(sorted, fingerprints)
	sort.Strings(sorted)
	return BuildMerkleRoot(sorted)
}
