package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

// trackingParams are query parameters stripped during URL
// normalization. They vary per click without changing the listing.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"ref":          true,
	"src":          true,
}

// NormalizeURL canonicalizes a listing URL so the same posting reached
// through different links yields one fingerprint: lowercase scheme and
// host, default ports and fragments dropped, tracking parameters
// removed, remaining query sorted, trailing slash trimmed.
// Parameters:
//   - raw: listing URL as received from an adapter.
// Returns:
//   - string: normalized URL; the raw input trimmed when parsing fails.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	q := u.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		vals := q[key]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = b.String()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// Fingerprint derives the exact-match cache key from a listing URL.
// Parameters:
//   - rawURL: listing URL as received from an adapter.
// Returns:
//   - string: hex MD5 of the normalized URL.
func Fingerprint(rawURL string) string {
	sum := md5.Sum([]byte(NormalizeURL(rawURL)))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lowercases, strips punctuation and collapses whitespace.
// Used as the fuzzy-match basis for titles and organization names.
// Parameters:
//   - s: raw title or organization string.
// Returns:
//   - string: normalized text.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
