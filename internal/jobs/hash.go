package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/sells-group/sheets-crm/internal/model"
)

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// StableHash fingerprints v as FNV-1a (32-bit) over the UTF-16 code units
// of its canonical JSON: object keys sorted at every depth, arrays in
// order, times as RFC 3339 UTC with milliseconds.
func StableHash(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonical(v)); err != nil {
		// Only reachable for channels, funcs and the like.
		return fmt.Sprintf("fnv1a:%x", fnvOffset32)
	}
	s := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	h := fnvOffset32
	for _, u := range utf16.Encode([]rune(string(s))) {
		h ^= uint32(u)
		h *= fnvPrime32
	}
	return fmt.Sprintf("fnv1a:%x", h)
}

// canonical rewrites times and walks nested containers. encoding/json
// already emits map keys in sorted order.
func canonical(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonical(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonical(val)
		}
		return out
	default:
		return v
	}
}

// VerifyInputHash covers every field the verification prompt reads.
func VerifyInputHash(r model.Record) string {
	return StableHash(map[string]any{
		"company_name":              r.CompanyName,
		"domain":                    r.Domain,
		"exec_search_category":      r.ExecSearchCategory,
		"firm_niche":                r.FirmNiche,
		"executive_name":            r.ExecutiveName,
		"executive_role":            r.ExecutiveRole,
		"executive_linkedin":        r.ExecutiveLinkedIn,
		"email":                     r.Email,
		"perplexity_research_notes": r.PerplexityResearchNotes,
	})
}

// EnrichInputHash covers the identifying fields enrichment starts from.
func EnrichInputHash(r model.Record) string {
	return StableHash(map[string]any{
		"company_name":       r.CompanyName,
		"domain":             r.Domain,
		"executive_name":     r.ExecutiveName,
		"executive_linkedin": r.ExecutiveLinkedIn,
	})
}

// InputHash picks the fingerprint for jobType.
func InputHash(jobType model.JobType, r model.Record) string {
	if jobType == model.JobVerifyRecord {
		return VerifyInputHash(r)
	}
	return EnrichInputHash(r)
}
