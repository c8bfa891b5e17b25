package jobs

import (
	"context"
	"errors"
	"strings"
)

// StepStatus is how one pipeline step ended.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepResult reports one step of a job.
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
	Err    error      `json:"-"`
}

// Succeeded marks a completed step.
func Succeeded(name string) StepResult {
	return StepResult{Name: name, Status: StepSucceeded}
}

// Skipped marks a step that was deliberately not run.
func Skipped(name, reason string) StepResult {
	return StepResult{Name: name, Status: StepSkipped, Reason: reason}
}

// Failed marks a step that errored. Later steps should not run.
func Failed(name string, err error) StepResult {
	return StepResult{Name: name, Status: StepFailed, Err: err, Reason: errString(err)}
}

// Outcome aggregates the steps of one job.
type Outcome struct {
	Steps []StepResult `json:"steps"`
}

// Add appends r and reports whether the pipeline may continue.
func (o *Outcome) Add(r StepResult) bool {
	o.Steps = append(o.Steps, r)
	return r.Status != StepFailed
}

// Err returns the first step failure, or nil.
func (o Outcome) Err() error {
	for _, s := range o.Steps {
		if s.Status == StepFailed {
			if s.Err != nil {
				return s.Err
			}
			return errors.New(s.Name + " failed")
		}
	}
	return nil
}

// SkippedSteps lists "name: reason" for every skipped step.
func (o Outcome) SkippedSteps() []string {
	var out []string
	for _, s := range o.Steps {
		if s.Status == StepSkipped {
			out = append(out, s.Name+": "+s.Reason)
		}
	}
	return out
}

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusOf returns the HTTP status carried anywhere in err's chain, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// IsAuthError reports an upstream 401 or 403.
func IsAuthError(err error) bool {
	s := StatusOf(err)
	return s == 401 || s == 403
}

// Disposition is the queue action taken for a finished job.
type Disposition int

const (
	DispositionSucceeded Disposition = iota
	DispositionRateLimited
	DispositionAuthBackoff
	DispositionFailed
)

// Classify maps a job error to its disposition. Timeouts and every other
// error fail the job.
func Classify(err error) Disposition {
	if err == nil {
		return DispositionSucceeded
	}
	switch StatusOf(err) {
	case 429:
		return DispositionRateLimited
	case 401, 403:
		return DispositionAuthBackoff
	}
	return DispositionFailed
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout: " + err.Error()
	}
	return strings.TrimSpace(err.Error())
}
