package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/model"
)

// enrichSteps run in order for enrich_record; research is optional.
var enrichSteps = []string{StepInferDomain, StepFirmNiche, StepEmailTemplate}

// Execute implements jobs.Executor.
func (s *Service) Execute(ctx context.Context, job model.Job) jobs.Outcome {
	var o jobs.Outcome
	switch job.JobType {
	case model.JobVerifyRecord:
		o.Add(s.stepResult(ctx, StepVerifyExecSearch, job.RecordID))
	case model.JobEnrichRecord:
		for _, step := range enrichSteps {
			if !o.Add(s.stepResult(ctx, step, job.RecordID)) {
				return o
			}
		}
		o.Add(s.optionalResearch(ctx, job.RecordID))
	default:
		o.Add(jobs.Failed("dispatch", eris.Errorf("enrich: unsupported job type %q", job.JobType)))
	}
	return o
}

func (s *Service) stepResult(ctx context.Context, step, recordID string) jobs.StepResult {
	res, err := s.Run(ctx, step, recordID)
	if err != nil {
		return jobs.Failed(step, err)
	}
	if res.Skipped != "" {
		return jobs.Skipped(step, res.Skipped)
	}
	return jobs.Succeeded(step)
}

// optionalResearch treats a missing or rejected Perplexity key as a skip so
// a misconfigured provider never fails the whole job.
func (s *Service) optionalResearch(ctx context.Context, recordID string) jobs.StepResult {
	r := s.stepResult(ctx, StepResearch, recordID)
	if r.Status != jobs.StepFailed {
		return r
	}
	switch {
	case jobs.IsAuthError(r.Err):
		return jobs.Skipped(StepResearch, "unauthorized")
	case errors.Is(r.Err, ErrResearchNotConfigured):
		return jobs.Skipped(StepResearch, "not configured")
	}
	return r
}
