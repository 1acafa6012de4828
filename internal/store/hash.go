package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash returns a hex SHA-256 of a file's content. Indexing skips files
// whose stored hash still matches.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
