package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Example.COM", "example.com"},
		{"https://www.example.com/about?x=1#top", "example.com"},
		{"http://example.com.", "example.com"},
		{"mailto:sales.example.com", "sales.example.com"},
		{"www.acme.io/", "acme.io"},
		{"example.com?ref=abc", "example.com"},
		{"example.com#frag", "example.com"},
		{"  HTTPS://Sub.Example.org/path  ", "sub.example.org"},
		{"www.www.example.com", "example.com"},
		{"http://mailto:x.com", "x.com"},
		{"x.com /path", "x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}

func TestNormalizeDomain_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"", "Example.com", "https://www.Example.com/a/b", "mailto:http://www.x.co",
		"www.www.www.example.com", "a..com", "not a domain", "foo.bar...", "HTTP://WWW.",
		"x.com /path", "https://https://example.com", "  www.  ", "İstanbul.com.tr",
	}
	for _, in := range inputs {
		once := NormalizeDomain(in)
		assert.Equal(t, once, NormalizeDomain(once), "input %q", in)
	}
}

func TestIsValidDomainLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"example.com", true},
		{"https://www.example.com/path", true},
		{"sub-domain.example.co.uk", true},
		{"not a domain", false},
		{"a..com", false},
		{"localhost", false},
		{"example.c", false},
		{"exa_mple.com", false},
		{"Acme Consulting", false},
		{strings.Repeat("a", 64) + ".com", false},
		{strings.Repeat("a", 63) + ".com", true},
		{strings.Repeat("abcdefghi.", 26) + "com", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsValidDomainLike(tt.in))
		})
	}
}

func TestExtractDomainFromEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", ExtractDomainFromEmail("Jane@Example.COM"))
	assert.Equal(t, "b.com", ExtractDomainFromEmail("weird@a@b.com"))
	assert.Equal(t, "", ExtractDomainFromEmail("no-at-sign"))
	assert.Equal(t, "", ExtractDomainFromEmail(""))
}

func TestNormalizeCompanyName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Acme, Inc.", "acme"},
		{"Acme LLC", "acme"},
		{"Acme Holdings Corporation", "acme holdings"},
		{"The Acme Company", "the acme"},
		{"Smith & Co.", "smith"},
		{"  Big---Bold   Ltd ", "big bold"},
		{"Société Générale", "societe generale"},
		{"Cobalt Partners", "cobalt partners"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeCompanyName(tt.in))
		})
	}
}

func TestGuessCompanyFromDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Acme Partners", GuessCompanyFromDomain("acme-partners.com"))
	assert.Equal(t, "Big Bold", GuessCompanyFromDomain("WWW.big_bold.io"))
	assert.Equal(t, "AcmeCorp", GuessCompanyFromDomain("acmeCorp.com"))
	assert.Equal(t, "", GuessCompanyFromDomain(""))
	assert.Equal(t, "", GuessCompanyFromDomain(".com"))
}

func TestNormalizeLinkedIn(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", NormalizeLinkedIn("  "))
	assert.Equal(t, "https://linkedin.com/in/jane", NormalizeLinkedIn("linkedin.com/in/jane"))
	assert.Equal(t, "HTTP://linkedin.com/in/jane", NormalizeLinkedIn("HTTP://linkedin.com/in/jane"))
}

func TestLooksLike(t *testing.T) {
	t.Parallel()

	assert.True(t, LooksLikeURL("https://acme.com"))
	assert.True(t, LooksLikeURL("visit www.acme.com"))
	assert.False(t, LooksLikeURL("Acme Consulting"))
	assert.True(t, LooksLikeEmail("jane@acme.com"))
	assert.False(t, LooksLikeEmail("Jane Doe"))
}
