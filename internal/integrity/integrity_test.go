package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("example.com", "Missing H1 Tag", "https://example.com/", "tech.missing_h1")
	b := Fingerprint("example.com", "Missing H1 Tag", "https://example.com/", "tech.missing_h1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "hex-encoded SHA-256")
}

func TestFingerprint_NormalizesTitle(t *testing.T) {
	a := Fingerprint("example.com", "Missing H1 Tag", "https://example.com/", "tech.missing_h1")
	b := Fingerprint("Example.com", "  missing h1 tag ", "https://example.com/", "tech.missing_h1")
	assert.Equal(t, a, b)
}

func TestFingerprint_DifferentInputs(t *testing.T) {
	base := Fingerprint("example.com", "Add Structured Data", "https://example.com/", "structured_data")
	assert.NotEqual(t, base, Fingerprint("example.org", "Add Structured Data", "https://example.com/", "structured_data"))
	assert.NotEqual(t, base, Fingerprint("example.com", "Add Structured Data", "https://example.com/blog", "structured_data"))
	assert.NotEqual(t, base, Fingerprint("example.com", "Add Structured Data", "https://example.com/", "other"))
}

func TestFingerprint_NoDelimiterCollision(t *testing.T) {
	a := Fingerprint("a|b", "c", "d", "e")
	b := Fingerprint("a", "b|c", "d", "e")
	assert.NotEqual(t, a, b)
}

func TestBuildMerkleRoot_Empty(t *testing.T) {
	assert.Equal(t, "", BuildMerkleRoot(nil))
}

func TestBuildMerkleRoot_SingleLeaf(t *testing.T) {
	assert.Equal(t, "abc", BuildMerkleRoot([]string{"abc"}))
}

func TestBuildMerkleRoot_OrderMatters(t *testing.T) {
	assert.NotEqual(t, BuildMerkleRoot([]string{"a", "b"}), BuildMerkleRoot([]string{"b", "a"}))
}

func TestBuildMerkleRoot_OddLeafCount(t *testing.T) {
	root := BuildMerkleRoot([]string{"a", "b", "c"})
	expected := hashPair(hashPair("a", "b"), hashPair("c", "c"))
	assert.Equal(t, expected, root)
}

func TestReportDigest_OrderIndependent(t *testing.T) {
	assert.Equal(t, ReportDigest([]string{"x", "y", "z"}), ReportDigest([]string{"z", "x", "y"}))
	assert.NotEqual(t, ReportDigest([]string{"x", "y"}), ReportDigest([]string{"x", "y", "z"}))
	assert.Equal(t, "", ReportDigest(nil))
}
