// Package sha256 derives content-addressed archive paths.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// Hasher hashes page bodies with SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ArchivePath returns "<prefix>/<recordID>/<digest>.html". Empty prefix
// segments are dropped.
func (h *Hasher) ArchivePath(prefix, recordID string, body []byte) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/ "); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strings.Trim(recordID, "/"), h.Hash(body)+".html")
	return path.Join(parts...)
}
