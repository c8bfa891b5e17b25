package importer

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Field is a CRM column a sheet header can map to.
type Field string

const (
	FieldCompanyName        Field = "companyName"
	FieldDomain             Field = "domain"
	FieldExecFirstName      Field = "executiveFirstName"
	FieldExecLastName       Field = "executiveLastName"
	FieldExecutiveName      Field = "executiveName"
	FieldExecutiveRole      Field = "executiveRole"
	FieldExecutiveLinkedIn  Field = "executiveLinkedIn"
	FieldEmail              Field = "email"
	FieldEmailTemplate      Field = "emailTemplate"
	FieldResearchNotes      Field = "perplexityResearchNotes"
	FieldFirmNiche          Field = "firmNiche"
	FieldExecSearchCategory Field = "execSearchCategory"
	FieldExecSearchStatus   Field = "execSearchStatus"
)

// Mapping maps CRM fields to the exact sheet header feeding them.
type Mapping map[Field]string

type pattern struct {
	re    *regexp.Regexp
	score float64
}

func p(expr string, score float64) pattern {
	return pattern{re: regexp.MustCompile(expr), score: score}
}

// rules are evaluated in order; each field takes the best-scoring header
// scoring at least 1.
var rules = []struct {
	field    Field
	patterns []pattern
}{
	{FieldCompanyName, []pattern{
		p(`^(company|company name|organization|organisation|account)$`, 8),
		p(`company.*name`, 7),
		p(`(account|organization).*name`, 5),
		p(`employer|business`, 2),
	}},
	{FieldDomain, []pattern{
		p(`^(domain|website|website url|company website|site|url)$`, 8),
		p(`website.*url`, 7),
		p(`company.*website`, 7),
		p(`domain`, 6),
		p(`web.?site|homepage`, 3),
		p(`linkedin.*company`, -5),
	}},
	{FieldExecFirstName, []pattern{p(`^(first name|firstname|given name)$`, 8)}},
	{FieldExecLastName, []pattern{p(`^(last name|lastname|surname|family name)$`, 8)}},
	{FieldExecutiveName, []pattern{
		p(`^(full name|name)$`, 8),
		p(`executive.*name`, 7),
		p(`contact.*name`, 6),
		p(`person.*name`, 5),
		p(`prospect.*name`, 4),
	}},
	{FieldExecutiveRole, []pattern{
		p(`^(title|job title|position|role)$`, 8),
		p(`executive.*title`, 6),
		p(`job.*title`, 6),
	}},
	{FieldExecutiveLinkedIn, []pattern{
		p(`^person linkedin url$`, 10),
		p(`(person|contact|executive).*linkedin.*(url|profile)`, 9),
		p(`linkedin.*(url|profile)`, 7),
		p(`linkedin$`, 5),
	}},
	{FieldEmail, []pattern{
		p(`^(email|email address|work email|business email)$`, 10),
		p(`email`, 7),
		p(`e-mail`, 7),
		p(`status`, -6),
		p(`verified`, -3),
	}},
	{FieldEmailTemplate, []pattern{
		p(`^email template$`, 10),
		p(`email.*template`, 8),
		p(`template`, 4),
	}},
	{FieldResearchNotes, []pattern{
		p(`^(perplexity research notes|research notes|notes)$`, 10),
		p(`perplexity`, 8),
		p(`research`, 6),
		p(`notes?`, 5),
	}},
	{FieldFirmNiche, []pattern{
		p(`^firm niche$`, 10),
		p(`niche`, 6),
		p(`tags?`, 3),
	}},
	{FieldExecSearchCategory, []pattern{
		p(`exec.*search.*category`, 10),
		p(`category`, 5),
		p(`segment`, 4),
	}},
	{FieldExecSearchStatus, []pattern{
		p(`^exec search\?$`, 10),
		p(`exec.*search`, 7),
		p(`search\?`, 2),
	}},
}

func normHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func scoreHeader(h string, patterns []pattern) float64 {
	n := normHeader(h)
	var score float64
	for _, pt := range patterns {
		if pt.re.MatchString(n) {
			score += pt.score
		}
	}
	// Ties go to the shorter, more specific header.
	if over := len(n) - 25; over > 0 {
		score -= float64(over) * 0.05
	}
	return score
}

// GuessMapping scores every header against each field's patterns. A
// header may feed more than one field; a field with no header scoring at
// least 1 is left unmapped.
func GuessMapping(headers []string) Mapping {
	seen := map[string]bool{}
	var hs []string
	for _, h := range headers {
		k := normHeader(h)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		hs = append(hs, h)
	}

	m := Mapping{}
	for _, r := range rules {
		best, bestScore := "", 0.0
		for i, h := range hs {
			s := scoreHeader(h, r.patterns)
			if i == 0 || s > bestScore {
				best, bestScore = h, s
			}
		}
		if best != "" && bestScore >= 1 {
			m[r.field] = best
		}
	}
	return m
}

// Apply builds an import row from one sheet row. First and last name are
// combined when no full-name column is mapped. The raw row is kept as JSON.
func (m Mapping) Apply(raw map[string]string) Row {
	get := func(f Field) string {
		h, ok := m[f]
		if !ok {
			return ""
		}
		return raw[h]
	}

	r := Row{
		CompanyName:             get(FieldCompanyName),
		Domain:                  get(FieldDomain),
		ExecutiveName:           get(FieldExecutiveName),
		ExecutiveRole:           get(FieldExecutiveRole),
		ExecutiveLinkedIn:       get(FieldExecutiveLinkedIn),
		Email:                   get(FieldEmail),
		EmailTemplate:           get(FieldEmailTemplate),
		PerplexityResearchNotes: get(FieldResearchNotes),
		FirmNiche:               get(FieldFirmNiche),
		ExecSearchCategory:      get(FieldExecSearchCategory),
		ExecSearchStatus:        get(FieldExecSearchStatus),
	}
	if strings.TrimSpace(r.ExecutiveName) == "" {
		first := strings.TrimSpace(get(FieldExecFirstName))
		last := strings.TrimSpace(get(FieldExecLastName))
		r.ExecutiveName = strings.TrimSpace(first + " " + last)
	}
	if b, err := json.Marshal(raw); err == nil {
		r.RawRowJSON = string(b)
	}
	return r
}

// Rows applies the mapping to every row of t.
func (m Mapping) Rows(t *Table) []Row {
	out := make([]Row, 0, len(t.Rows))
	for _, raw := range t.Rows {
		out = append(out, m.Apply(raw))
	}
	return out
}
