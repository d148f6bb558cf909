package types

import (
	"fmt"
	"strings"
)

const maxKeyLength = 1024

// ValidateKey checks a caller-supplied object key before it reaches the store.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalidInput, maxKeyLength)
	}
	if strings.HasSuffix(key, ProcessedSuffix) {
		return fmt.Errorf("%w: key may not end in %q", ErrInvalidInput, ProcessedSuffix)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: key has an empty or relative path segment", ErrInvalidInput)
		}
	}
	return nil
}

// ObjectName scopes a key under the owning user's prefix.
func ObjectName(userID, key string) string {
	return fmt.Sprintf("%s/%s", userID, key)
}
