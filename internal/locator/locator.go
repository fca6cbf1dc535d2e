package locator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

const (
	// Scheme prefixes accepted on subscription and media URIs.
	schemePrefix    = "nomadcast:"
	schemeURLPrefix = "nomadcast://"

	mediaSegment = "/media/"

	// HashLength is the required length of a destination hash in hex
	// characters (16 bytes).
	HashLength = 32

	maxFilenameLength = 255
)

// ErrInvalidLocator reports a locator that failed validation.
var ErrInvalidLocator = errors.New("invalid locator")

// Locator identifies a show by destination hash and show name. The hash
// is authoritative; two locators refer to the same show exactly when
// their hashes and names match after canonicalization. Values are
// immutable once parsed.
type Locator struct {
	Hash string
	Name string
}

// Parse accepts the locator forms users paste or configs carry:
// nomadcast:HASH:NAME, nomadcast://HASH:NAME, and bare HASH:NAME, with
// an optional trailing /rss. The hash is canonicalized to lowercase.
func Parse(text string) (Locator, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Locator{}, fmt.Errorf("%w: empty input", ErrInvalidLocator)
	}
	body := stripScheme(trimmed)
	body = strings.TrimSuffix(body, "/rss")
	body = strings.TrimRight(body, "/")
	if strings.Contains(body, mediaSegment) {
		return Locator{}, fmt.Errorf("%w: media URLs are not subscription locators", ErrInvalidLocator)
	}
	hash, name, ok := strings.Cut(body, ":")
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing show name", ErrInvalidLocator)
	}
	return build(hash, name)
}

// ParsePathSegment decodes a single URL path segment produced by
// PathSegment back into a Locator.
func ParsePathSegment(segment string) (Locator, error) {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	hash, name, ok := strings.Cut(decoded, ":")
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing show name", ErrInvalidLocator)
	}
	return build(hash, name)
}

// ParseMediaURL parses a nomadcast media URL of the form
// nomadcast:HASH:NAME/media/FILENAME and returns the owning locator and
// the validated media filename.
func ParseMediaURL(raw string) (Locator, string, error) {
	prefix, encoded, ok := strings.Cut(raw, mediaSegment)
	if !ok {
		return Locator{}, "", fmt.Errorf("%w: not a media URL", ErrInvalidLocator)
	}
	filename, err := url.PathUnescape(encoded)
	if err != nil {
		return Locator{}, "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	body := stripScheme(strings.TrimSpace(prefix))
	hash, name, cut := strings.Cut(body, ":")
	if !cut {
		return Locator{}, "", fmt.Errorf("%w: missing show name", ErrInvalidLocator)
	}
	loc, err := build(hash, name)
	if err != nil {
		return Locator{}, "", err
	}
	if !ValidFilename(filename) {
		return Locator{}, "", fmt.Errorf("%w: unsafe filename %q", ErrInvalidLocator, filename)
	}
	return loc, filename, nil
}

// Canonical returns the "hash:name" form used as the unique cache and
// storage key.
func (l Locator) Canonical() string {
	return l.Hash + ":" + l.Name
}

// PathSegment encodes the canonical form as a single URL path segment.
func (l Locator) PathSegment() string {
	return url.PathEscape(l.Canonical())
}

// URI returns the full subscription URI for display.
func (l Locator) URI() string {
	return schemePrefix + l.Canonical()
}

func (l Locator) String() string {
	return l.Canonical()
}

// IsZero reports whether the locator carries no identity.
func (l Locator) IsZero() bool {
	return l.Hash == "" && l.Name == ""
}

// ValidFilename reports whether a media filename stays within the safe
// subset served from the episodes directory: no path separators, no
// parent references, printable, and bounded length.
func ValidFilename(name string) bool {
	if name == "" || len(name) > maxFilenameLength {
		return false
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func stripScheme(value string) string {
	if after, ok := strings.CutPrefix(value, schemeURLPrefix); ok {
		return after
	}
	if after, ok := strings.CutPrefix(value, schemePrefix); ok {
		return after
	}
	return value
}

func build(hash, name string) (Locator, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if len(hash) != HashLength {
		return Locator{}, fmt.Errorf("%w: destination hash must be %d hex characters", ErrInvalidLocator, HashLength)
	}
	for _, r := range hash {
		if !isHex(r) {
			return Locator{}, fmt.Errorf("%w: destination hash must be hex", ErrInvalidLocator)
		}
	}
	if name == "" {
		return Locator{}, fmt.Errorf("%w: show name is required", ErrInvalidLocator)
	}
	return Locator{Hash: hash, Name: name}, nil
}

func isHex(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	default:
		return false
	}
}
