package utils

import (
	"crypto/md5"
	"fmt"
)

// Checksum returns the md5 hex digest of the given content. Used for document
// dedup bookkeeping, not for anything security-sensitive.
func Checksum(content string) string {
	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("%x", hash)
}
