// Package normalize canonicalizes raw domain, email, company-name and
// LinkedIn strings. Every function is pure and idempotent.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	protocolPrefix = regexp.MustCompile(`^https?://`)
	domainChars    = regexp.MustCompile(`^[a-z0-9.-]+$`)
	legalSuffixes  = regexp.MustCompile(`\b(inc|inc\.|llc|l\.l\.c\.|ltd|ltd\.|corp|corp\.|corporation|company|co\.|co)\b`)
	nonAlnumRun    = regexp.MustCompile(`[^a-z0-9]+`)
	tokenSplit     = regexp.MustCompile(`[-_]+`)
	schemePrefix   = regexp.MustCompile(`(?i)^https?://`)
)

// Clean trims surrounding whitespace.
func Clean(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeDomain reduces a URL, email-ish or bare host to a lowercase
// host: no scheme, no mailto:, no leading www., no path/query/fragment and
// no trailing dots. The steps are repeated until the value is stable.
func NormalizeDomain(input string) string {
	s := input
	for i := 0; i < 8; i++ {
		next := normalizeDomainOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func normalizeDomainOnce(input string) string {
	s := strings.ToLower(Clean(input))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "mailto:")
	s = protocolPrefix.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	return strings.TrimRight(s, ".")
}

// IsValidDomainLike is a light host-shape check. The empty string is valid.
func IsValidDomainLike(input string) bool {
	d := NormalizeDomain(input)
	if d == "" {
		return true
	}
	if strings.IndexFunc(d, unicode.IsSpace) >= 0 {
		return false
	}
	if !strings.Contains(d, ".") {
		return false
	}
	if !domainChars.MatchString(d) {
		return false
	}
	if len(d) > 253 {
		return false
	}
	labels := strings.Split(d, ".")
	for _, l := range labels {
		if len(l) == 0 || len(l) > 63 {
			return false
		}
	}
	return len(labels[len(labels)-1]) >= 2
}

// ExtractDomainFromEmail returns the lowercase part after the last '@'.
func ExtractDomainFromEmail(email string) string {
	e := strings.ToLower(Clean(email))
	at := strings.LastIndex(e, "@")
	if at == -1 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(e[at+1:], "mailto:"))
}

// NormalizeCompanyName lowercases, folds accents, strips legal suffixes
// (inc, llc, ltd, corp, co, company, corporation) and collapses
// punctuation to single spaces.
func NormalizeCompanyName(name string) string {
	s := strings.ToLower(Clean(name))
	if s == "" {
		return ""
	}
	s = foldAccents(s)
	s = legalSuffixes.ReplaceAllString(s, "")
	s = nonAlnumRun.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// GuessCompanyFromDomain turns "acme-partners.com" into "Acme Partners".
func GuessCompanyFromDomain(domain string) string {
	d := Clean(domain)
	if len(d) >= 4 && strings.EqualFold(d[:4], "www.") {
		d = d[4:]
	}
	if d == "" {
		return ""
	}
	base, _, _ := strings.Cut(d, ".")
	if base == "" {
		return ""
	}
	tokens := tokenSplit.Split(base, -1)
	for i, tok := range tokens {
		tokens[i] = upperFirst(tok)
	}
	return strings.Join(tokens, " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// NormalizeLinkedIn trims the URL and adds an https:// scheme when missing.
func NormalizeLinkedIn(url string) string {
	u := Clean(url)
	if u == "" {
		return ""
	}
	if !schemePrefix.MatchString(u) {
		u = "https://" + u
	}
	return u
}

// LooksLikeURL reports whether s carries a scheme or a www. host.
func LooksLikeURL(s string) bool {
	return urlish.MatchString(s)
}

// LooksLikeEmail reports whether s contains something shaped like an address.
func LooksLikeEmail(s string) bool {
	return emailish.MatchString(s)
}

var (
	urlish   = regexp.MustCompile(`(?i)https?://|\bwww\.`)
	emailish = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)
)
