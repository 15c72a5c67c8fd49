package credentials

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeOwner trims and NFKC-normalizes an owner/principal value,
// matching the identifier-comparison behavior the rest of the fleet applies
// to user-supplied identity strings.
func normalizeOwner(owner string) (string, error) {
	trimmed := strings.TrimSpace(owner)
	if trimmed == "" {
		return "", errors.New("owner must not be empty")
	}
	return norm.NFKC.String(trimmed), nil
}
