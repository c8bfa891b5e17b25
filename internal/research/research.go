// Package research discovers firms for a free-text query with web search,
// and adds the chosen ones to the CRM as firm-only records queued for
// enrichment.
package research

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/aicache"
	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/llm"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
	"github.com/sells-group/sheets-crm/internal/record"
	"github.com/sells-group/sheets-crm/pkg/perplexity"
)

const extractPrompt = `Extract structured firm suggestions from the given text. ` +
	`Output ONLY JSON with shape { suggestions: [{ companyName, domain, notes, sources }] }. ` +
	`Domains must be bare domains like "example.com".`

var (
	// ErrEmptyCommand is returned when no research query is given.
	ErrEmptyCommand = eris.New("research: command is required")
	// ErrNotConfigured means the search or LLM provider is missing.
	ErrNotConfigured = eris.New("research: providers not configured")
)

// Suggestion is one discovered firm.
type Suggestion struct {
	CompanyName string   `json:"companyName"`
	Domain      string   `json:"domain"`
	Notes       string   `json:"notes"`
	Sources     []string `json:"sources"`
	Existing    bool     `json:"existing"`
}

// Telemetry counts what a suggest or add call did.
type Telemetry struct {
	Suggested        int `json:"suggested"`
	FilteredExisting int `json:"filteredExisting"`
	Added            int `json:"added"`
}

// SuggestResult is returned by Suggest.
type SuggestResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	Telemetry   Telemetry    `json:"telemetry"`
}

// AddResult is returned by Add.
type AddResult struct {
	AddedDomains []string  `json:"addedDomains"`
	Telemetry    Telemetry `json:"telemetry"`
}

// Companies is the company-store surface research needs.
type Companies interface {
	Upsert(ctx context.Context, companyName, domain string) (*model.Company, error)
	ExistingDomains(ctx context.Context, domains []string) (map[string]bool, error)
}

// Records is the record-store surface research needs.
type Records interface {
	UpsertMerged(ctx context.Context, r model.Record) (*record.UpsertResult, error)
	LinkCompany(ctx context.Context, recordID, companyID string) error
}

// Enqueuer schedules the follow-up enrichment.
type Enqueuer interface {
	EnqueueOne(ctx context.Context, jobType model.JobType, recordID string) (*jobs.EnqueueResult, error)
}

// Config wires a Service.
type Config struct {
	Search    perplexity.Client
	LLM       llm.Provider
	Cache     aicache.Cache
	Companies Companies
	Records   Records
	Jobs      Enqueuer
	Timeout   time.Duration
}

// Service runs research discovery.
type Service struct {
	cfg Config
	log *zap.Logger
}

// NewService creates a Service. A zero Timeout means 30s.
func NewService(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Service{cfg: cfg, log: zap.L().With(zap.String("component", "research"))}
}

// Suggest searches for firms matching command and flags those whose domain
// already belongs to a live company.
func (s *Service) Suggest(ctx context.Context, command string) (*SuggestResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}

	suggestions, err := s.discover(ctx, command)
	if err != nil {
		return nil, err
	}

	domains := make([]string, len(suggestions))
	for i, sg := range suggestions {
		domains[i] = strings.ToLower(sg.Domain)
	}
	existing, err := s.cfg.Companies.ExistingDomains(ctx, domains)
	if err != nil {
		return nil, err
	}

	res := &SuggestResult{Suggestions: suggestions}
	for i := range res.Suggestions {
		if existing[domains[i]] {
			res.Suggestions[i].Existing = true
			res.Telemetry.FilteredExisting++
		}
	}
	res.Telemetry.Suggested = len(res.Suggestions)
	return res, nil
}

// discover returns deduplicated suggestions, cached by command.
func (s *Service) discover(ctx context.Context, command string) ([]Suggestion, error) {
	if s.cfg.Search == nil || s.cfg.LLM == nil {
		return nil, ErrNotConfigured
	}

	key, err := aicache.SignatureKey("px:suggest", "v1", command)
	if err != nil {
		return nil, err
	}
	var cached []Suggestion
	if s.cfg.Cache != nil {
		if ok, err := s.cfg.Cache.Get(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text, err := perplexity.Search(ctx, s.cfg.Search, "Return a list of firms for this query: "+command+
		"\n\nFor each firm include: companyName, domain, notes, sources (URLs). Provide as compact JSON if possible.")
	if err != nil {
		return nil, eris.Wrap(err, "research: search")
	}

	var out struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	err = s.cfg.LLM.ChatJSON(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: extractPrompt},
		{Role: llm.RoleUser, Content: text},
	}, 0, &out)
	if err != nil {
		return nil, eris.Wrap(err, "research: extract suggestions")
	}

	suggestions := UniqueByDomain(out.Suggestions)
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Set(ctx, key, suggestions); err != nil {
			s.log.Warn("cache suggestions failed", zap.Error(err))
		}
	}
	return suggestions, nil
}

// UniqueByDomain normalizes domains, drops suggestions without one and
// keeps the first suggestion per domain.
func UniqueByDomain(in []Suggestion) []Suggestion {
	seen := map[string]bool{}
	out := make([]Suggestion, 0, len(in))
	for _, sg := range in {
		d := normalize.NormalizeDomain(sg.Domain)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		sg.Domain = d
		sg.Existing = false
		out = append(out, sg)
	}
	return out
}

// Add stores each suggestion whose domain is listed in domains as a
// firm-only record, links it to its company and queues enrichment.
func (s *Service) Add(ctx context.Context, command string, suggestions []Suggestion, domains []string) (*AddResult, error) {
	picked := map[string]bool{}
	for _, d := range domains {
		if nd := normalize.NormalizeDomain(d); nd != "" {
			picked[nd] = true
		}
	}

	res := &AddResult{AddedDomains: []string{}}
	res.Telemetry.Suggested = len(suggestions)
	source := "research"
	if c := strings.TrimSpace(command); c != "" {
		source = "research:" + c
	}

	for _, sg := range suggestions {
		d := normalize.NormalizeDomain(sg.Domain)
		if d == "" || !picked[d] {
			continue
		}
		sg.Domain = d

		if err := s.addOne(ctx, command, source, sg); err != nil {
			res.Telemetry.FilteredExisting++
			s.log.Info("research add skipped", zap.String("domain", d), zap.Error(err))
			continue
		}
		res.Telemetry.Added++
		res.AddedDomains = append(res.AddedDomains, d)
	}
	return res, nil
}

func (s *Service) addOne(ctx context.Context, command, source string, sg Suggestion) error {
	c, err := s.cfg.Companies.Upsert(ctx, sg.CompanyName, sg.Domain)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return eris.Wrap(err, "research: company exists")
		}
		return err
	}

	raw, _ := json.Marshal(map[string]any{"researchCommand": command, "suggestion": sg})
	up, err := s.cfg.Records.UpsertMerged(ctx, model.Record{
		CompanyName:             sg.CompanyName,
		Domain:                  sg.Domain,
		PerplexityResearchNotes: researchNotes(sg),
		ExecSearchStatus:        model.ExecSearchUnknown,
		SourceFile:              source,
		RawRowJSON:              string(raw),
	})
	if err != nil {
		return err
	}

	if c != nil {
		if err := s.cfg.Records.LinkCompany(ctx, up.Record.ID, c.ID); err != nil {
			return err
		}
	}
	if s.cfg.Jobs != nil {
		if _, err := s.cfg.Jobs.EnqueueOne(ctx, model.JobEnrichRecord, up.Record.ID); err != nil {
			return err
		}
	}
	return nil
}

func researchNotes(sg Suggestion) string {
	var parts []string
	if sg.Notes != "" {
		parts = append(parts, sg.Notes)
	}
	if len(sg.Sources) > 0 {
		parts = append(parts, strings.Join(sg.Sources, "\n"))
	}
	return strings.Join(parts, "\n\nSources:\n")
}
