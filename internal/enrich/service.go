// Package enrich runs the AI steps that fill in a record: LLM decisions and
// drafts plus Perplexity web research. Each step loads the record, calls one
// provider under a timeout and writes its result back.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/aicache"
	"github.com/sells-group/sheets-crm/internal/llm"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/pkg/perplexity"
)

// Step names double as the /api/records/ai/{step} path segment.
const (
	StepVerifyExecSearch = "verify-exec-search"
	StepInferDomain      = "infer-domain"
	StepFirmNiche        = "generate-firm-niche"
	StepEmailTemplate    = "draft-email-template"
	StepResearch         = "perplexity-research"
	StepCategorize       = "perplexity-categorize"
	StepExecutives       = "perplexity-executives"
	StepDeepNotes        = "perplexity-deep-notes"
)

const notesSeparator = "\n\n---\n\n"

var (
	// ErrUnknownStep is returned by Run for an unrecognized step name.
	ErrUnknownStep = eris.New("enrich: unknown step")
	// ErrLLMNotConfigured means no chat provider key is set.
	ErrLLMNotConfigured = eris.New("enrich: llm provider not configured")
	// ErrResearchNotConfigured means no Perplexity key is set.
	ErrResearchNotConfigured = eris.New("enrich: perplexity not configured")
)

// Records is the record access the steps need.
type Records interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	Update(ctx context.Context, id string, patch model.RecordPatch) (*model.Record, error)
}

// Result is what one step produced.
type Result struct {
	Step     string        `json:"step"`
	Record   *model.Record `json:"record,omitempty"`
	AI       any           `json:"ai,omitempty"`
	Text     string        `json:"text,omitempty"`
	Category string        `json:"category,omitempty"`
	Cached   bool          `json:"cached"`
	Skipped  string        `json:"skipped,omitempty"`
}

// Config wires the providers. LLM and Research may be nil when their keys
// are unset.
type Config struct {
	LLM         llm.Provider
	Research    perplexity.Client
	Cache       aicache.Cache
	StepTimeout time.Duration
}

// Service runs enrichment steps against stored records.
type Service struct {
	records  Records
	llm      llm.Provider
	research perplexity.Client
	cache    aicache.Cache
	timeout  time.Duration
	log      *zap.Logger
}

// NewService creates a Service. A zero StepTimeout means 30s.
func NewService(records Records, cfg Config) *Service {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	return &Service{
		records:  records,
		llm:      cfg.LLM,
		research: cfg.Research,
		cache:    cfg.Cache,
		timeout:  cfg.StepTimeout,
		log:      zap.L().With(zap.String("component", "enrich")),
	}
}

// Steps lists every step name Run accepts.
func Steps() []string {
	return []string{
		StepVerifyExecSearch, StepInferDomain, StepFirmNiche, StepEmailTemplate,
		StepResearch, StepCategorize, StepExecutives, StepDeepNotes,
	}
}

// Run executes one named step for a record.
func (s *Service) Run(ctx context.Context, step, recordID string) (*Result, error) {
	fn, ok := map[string]func(context.Context, *model.Record) (*Result, error){
		StepVerifyExecSearch: s.verifyExecSearch,
		StepInferDomain:      s.inferDomain,
		StepFirmNiche:        s.firmNiche,
		StepEmailTemplate:    s.draftEmailTemplate,
		StepResearch:         s.researchNotes,
		StepCategorize:       s.categorize,
		StepExecutives:       s.executives,
		StepDeepNotes:        s.deepNotes,
	}[step]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownStep, "enrich: %q", step)
	}

	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := fn(ctx, rec)
	if err != nil {
		s.log.Warn("enrich step failed",
			zap.String("step", step),
			zap.String("record_id", recordID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	res.Step = step
	s.log.Debug("enrich step done",
		zap.String("step", step),
		zap.String("record_id", recordID),
		zap.Bool("cached", res.Cached),
		zap.String("skipped", res.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// chat runs one bounded JSON completion.
func (s *Service) chat(ctx context.Context, system string, input any, temperature float64, out any) error {
	if s.llm == nil {
		return ErrLLMNotConfigured
	}
	user, err := promptJSON(input)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.llm.ChatJSON(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, temperature, out)
}

// search runs one bounded Perplexity query.
func (s *Service) search(ctx context.Context, query string) (string, error) {
	if s.research == nil {
		return "", ErrResearchNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return perplexity.Search(ctx, s.research, query)
}

// cached looks key up when a cache is wired. Cache errors degrade to a miss.
func (s *Service) cached(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, out)
	if err != nil {
		s.log.Warn("ai cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) remember(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.log.Warn("ai cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func appendNotes(existing, addition string) string {
	switch {
	case existing == "":
		return addition
	case addition == "":
		return existing
	}
	return existing + notesSeparator + addition
}
