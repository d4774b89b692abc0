package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxSlugLength keeps school storage prefixes (<env>/<slug>-<shortid>/) well inside object-name limits.
const MaxSlugLength = 48

// ErrInvalidSlug is wrapped by every NormalizeSlug failure.
var ErrInvalidSlug = errors.New("invalid school slug")

var schoolSlug = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeSlug lowercases and trims a school slug, then checks it is hyphen-separated
// lowercase alphanumerics of at most MaxSlugLength characters.
func NormalizeSlug(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	switch {
	case slug == "":
		return "", fmt.Errorf("%w: slug is required", ErrInvalidSlug)
	case len(slug) > MaxSlugLength:
		return "", fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidSlug, slug, MaxSlugLength)
	case !schoolSlug.MatchString(slug):
		return "", fmt.Errorf("%w: %q may only contain a-z, 0-9 and single hyphens between them", ErrInvalidSlug, input)
	}
	return slug, nil
}
