package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/aicache"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
)

const (
	verifyPrompt = "Decide if this firm is likely currently running an executive search/leadership hiring effort based on the record context. " +
		"Output JSON with {status: unknown|yes|no, reason: short}. Be conservative: use unknown unless evidence indicates yes/no."
	inferDomainPrompt = "Infer the firm's primary website domain from the record context. " +
		"Output JSON {domain, confidence: low|medium|high}. Use an empty domain when unsure. Never return a personal email provider."
	firmNichePrompt = "Describe the firm's niche in at most 8 words (industry, specialty, client segment). Output JSON {firmNiche}."
	emailTemplatePrompt = "Draft a concise cold email template. Use these placeholders exactly: {Executive_Name}, {Company_Name}, {Domain}, {Executive_Role}. " +
		"Keep under 120 words. Output JSON {emailTemplate}."
)

type verifyOut struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type domainOut struct {
	Domain     string `json:"domain"`
	Confidence string `json:"confidence"`
}

type nicheOut struct {
	FirmNiche string `json:"firmNiche"`
}

type templateOut struct {
	EmailTemplate string `json:"emailTemplate"`
}

type categoryOut struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type textOut struct {
	Text string `json:"text"`
}

func (s *Service) verifyExecSearch(ctx context.Context, r *model.Record) (*Result, error) {
	input := map[string]string{
		"companyName":        r.CompanyName,
		"domain":             r.Domain,
		"execSearchCategory": r.ExecSearchCategory,
		"firmNiche":          r.FirmNiche,
		"executiveName":      r.ExecutiveName,
		"executiveRole":      r.ExecutiveRole,
		"executiveLinkedIn":  r.ExecutiveLinkedIn,
		"email":              r.Email,
		"notes":              r.PerplexityResearchNotes,
	}
	var out verifyOut
	if err := s.chat(ctx, verifyPrompt, input, 0, &out); err != nil {
		return nil, err
	}
	status, err := model.ParseExecSearchStatus(out.Status)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: verify answer")
	}

	updated, err := s.records.Update(ctx, r.ID, model.RecordPatch{ExecSearchStatus: &status})
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, AI: out}, nil
}

func (s *Service) inferDomain(ctx context.Context, r *model.Record) (*Result, error) {
	if r.Domain != "" {
		return &Result{Record: r, Skipped: "domain present"}, nil
	}
	input := map[string]string{
		"companyName":       r.CompanyName,
		"executiveName":     r.ExecutiveName,
		"executiveLinkedIn": r.ExecutiveLinkedIn,
		"email":             r.Email,
		"notes":             r.PerplexityResearchNotes,
	}
	var out domainOut
	if err := s.chat(ctx, inferDomainPrompt, input, 0, &out); err != nil {
		return nil, err
	}

	domain := normalize.NormalizeDomain(out.Domain)
	if domain == "" || !normalize.IsValidDomainLike(domain) {
		return &Result{Record: r, AI: out, Skipped: "no confident domain"}, nil
	}
	updated, err := s.records.Update(ctx, r.ID, model.RecordPatch{Domain: &domain})
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, AI: out}, nil
}

func (s *Service) firmNiche(ctx context.Context, r *model.Record) (*Result, error) {
	if r.FirmNiche != "" {
		return &Result{Record: r, Skipped: "niche present"}, nil
	}
	key := aicache.Key("ai:firm-niche", "v1", r.ID, r.UpdatedAt)

	var out nicheOut
	cached := s.cached(ctx, key, &out)
	if !cached {
		input := map[string]string{
			"companyName": r.CompanyName,
			"domain":      r.Domain,
			"notes":       r.PerplexityResearchNotes,
		}
		if err := s.chat(ctx, firmNichePrompt, input, 0.2, &out); err != nil {
			return nil, err
		}
		s.remember(ctx, key, out)
	}

	niche := strings.TrimSpace(out.FirmNiche)
	if niche == "" {
		return &Result{Record: r, AI: out, Cached: cached}, nil
	}
	updated, err := s.records.Update(ctx, r.ID, model.RecordPatch{FirmNiche: &niche})
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, AI: out, Cached: cached}, nil
}

func (s *Service) draftEmailTemplate(ctx context.Context, r *model.Record) (*Result, error) {
	key := aicache.Key("ai:email-template", "v1", r.ID, r.UpdatedAt)

	var out templateOut
	cached := s.cached(ctx, key, &out)
	if !cached {
		input := map[string]string{
			"companyName":   r.CompanyName,
			"domain":        r.Domain,
			"executiveName": r.ExecutiveName,
			"executiveRole": r.ExecutiveRole,
			"firmNiche":     r.FirmNiche,
			"notes":         r.PerplexityResearchNotes,
		}
		if err := s.chat(ctx, emailTemplatePrompt, input, 0.4, &out); err != nil {
			return nil, err
		}
		s.remember(ctx, key, out)
	}

	if out.EmailTemplate == "" {
		return &Result{Record: r, AI: out, Cached: cached}, nil
	}
	updated, err := s.records.Update(ctx, r.ID, model.RecordPatch{EmailTemplate: &out.EmailTemplate})
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, AI: out, Cached: cached}, nil
}

func (s *Service) researchNotes(ctx context.Context, r *model.Record) (*Result, error) {
	q := strings.Join([]string{
		"Company: " + r.CompanyName,
		"Domain: " + r.Domain,
		"Executive: " + r.ExecutiveName + " (" + r.ExecutiveRole + ")",
		"Need: summarize what this firm does, niche, and any relevant recent executive search/hiring signals.",
	}, "\n")

	text, err := s.search(ctx, q)
	if err != nil {
		return nil, err
	}
	notes := appendNotes(r.PerplexityResearchNotes, text)
	updated, err := s.records.Update(ctx, r.ID, model.RecordPatch{PerplexityResearchNotes: &notes})
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, Text: text}, nil
}

func (s *Service) categorize(ctx context.Context, r *model.Record) (*Result, error) {
	key := aicache.Key("px:categorize", "v1", r.ID, r.UpdatedAt)

	var out categoryOut
	if s.cached(ctx, key, &out) {
		return &Result{Category: out.Category, Text: out.Text, Cached: true}, nil
	}

	q := strings.Join([]string{
		"Categorize this firm in 1-3 words (e.g., staffing, executive search, recruiting, consultancy, SaaS, agency).",
		"Company: " + r.CompanyName,
		"Domain: " + r.Domain,
		"Provide: category on first line, then 3 bullets of evidence.",
	}, "\n")
	text, err := s.search(ctx, q)
	if err != nil {
		return nil, err
	}
	out = categoryOut{Category: firstLine(text), Text: text}
	s.remember(ctx, key, out)
	return &Result{Category: out.Category, Text: out.Text}, nil
}

func (s *Service) executives(ctx context.Context, r *model.Record) (*Result, error) {
	key := aicache.Key("px:executives", "v1", r.ID, r.UpdatedAt)

	var out textOut
	if s.cached(ctx, key, &out) {
		return &Result{Text: out.Text, Cached: true}, nil
	}

	q := strings.Join([]string{
		"Find key executives for this firm and provide names + roles + any LinkedIn/website citations if available.",
		"Company: " + r.CompanyName,
		"Domain: " + r.Domain,
		"Output: 5-10 bullets, each: Name | Role | Source URL (if found).",
	}, "\n")
	text, err := s.search(ctx, q)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, key, textOut{Text: text})
	return &Result{Text: text}, nil
}

func (s *Service) deepNotes(ctx context.Context, r *model.Record) (*Result, error) {
	key := aicache.Key("px:deep-notes", "v1", r.ID, r.UpdatedAt)

	var out textOut
	cached := s.cached(ctx, key, &out)
	if !cached {
		q := strings.Join([]string{
			"Company: " + r.CompanyName,
			"Domain: " + r.Domain,
			"Task: Write deep research notes (8-12 bullets) about what the firm does, customers, positioning, and hiring signals. " +
				"Include any relevant leadership/executive search signals.",
		}, "\n")
		text, err := s.search(ctx, q)
		if err != nil {
			return nil, err
		}
		out.Text = text
		s.remember(ctx, key, out)
	}

	notes := appendNotes(r.PerplexityResearchNotes, out.Text)
	updated, err := s.records.Update(ctx, r.ID, model.RecordPatch{PerplexityResearchNotes: &notes})
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, Text: out.Text, Cached: cached}, nil
}

func firstLine(text string) string {
	for _, l := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}

func promptJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "enrich: marshal prompt input")
	}
	return string(b), nil
}
