// Package fingerprint computes deterministic deduplication keys for article
// content. Two pieces of content are duplicates if their normalized URLs
// match exactly or their content hashes match exactly; either signal alone
// is sufficient.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Fingerprint is the dedup identity of a piece of content. URLKey is empty
// for raw-text submissions; ContentHash is empty when only a URL is known
// and its body has not been fetched.
type Fingerprint struct {
	URLKey      string
	ContentHash string
}

// Key returns the single lookup key used for job coalescing: the URL key
// when the content has a canonical URL, otherwise the content hash.
func (f Fingerprint) Key() string {
	if f.URLKey != "" {
		return "url:" + f.URLKey
	}
	return "text:" + f.ContentHash
}

// New computes the fingerprint for content with an optional canonical URL
// and an optional body. At least one must be non-empty.
func New(rawURL, body string) (Fingerprint, error) {
	if rawURL == "" && body == "" {
		return Fingerprint{}, fmt.Errorf("fingerprint requires a URL or body text")
	}

	var fp Fingerprint
	if rawURL != "" {
		normalized, err := NormalizeURL(rawURL)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("normalize url: %w", err)
		}
		fp.URLKey = hashString(normalized)
	}
	if body != "" {
		fp.ContentHash = HashContent(body)
	}
	return fp, nil
}

// NormalizeURL reduces a URL to scheme + host + path. Query and fragment are
// stripped, the host is lowercased, default ports are dropped, and a trailing
// slash on a non-root path is removed.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	return scheme + "://" + host + path, nil
}

// HashContent hashes body text normalized for whitespace: runs of whitespace
// collapse to a single space, leading/trailing whitespace is trimmed, and
// case is preserved.
func HashContent(body string) string {
	normalized := strings.Join(strings.Fields(body), " ")
	return hashString(normalized)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
