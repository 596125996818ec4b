package service

import (
	"strings"
	"time"

	"github.com/timmy/cloudnet/internal/domain"
)

// Outcome is the result class of one processing unit.
type Outcome string

const (
	OutcomeCreated Outcome = "Created"
	OutcomeUpdated Outcome = "Updated"
	OutcomeFrozen  Outcome = "Frozen"
	OutcomeSkipped Outcome = "Skipped"
	OutcomeMissing Outcome = "Missing"
	OutcomeFailed  Outcome = "Failed"
)

// Report is the status of one finished unit.
type Report struct {
	Unit     domain.ProcessingUnit
	Outcome  Outcome
	UUID     string
	Reason   string
	Err      error
	Duration time.Duration
}

// String renders the operator status line,
// e.g. "bucharest 2020-10-22 radar: Created 5f3c...".
func (r Report) String() string {
	var b strings.Builder
	b.WriteString(r.Unit.String())
	b.WriteString(": ")
	b.WriteString(string(r.Outcome))
	if r.UUID != "" {
		b.WriteString(" ")
		b.WriteString(r.UUID)
	}
	if r.Reason != "" {
		b.WriteString(" (")
		b.WriteString(r.Reason)
		b.WriteString(")")
	}
	return b.String()
}

// reportError classifies err into a unit outcome.
func reportError(unit domain.ProcessingUnit, err error) Report {
	return Report{Unit: unit, Outcome: classify(err), Reason: err.Error(), Err: err}
}

func classify(err error) Outcome {
	switch {
	case domain.ErrFrozen.Has(err), domain.ErrAlreadyProcessed.Has(err):
		return OutcomeSkipped
	case domain.ErrRawMissing.Has(err), domain.ErrDerivedMissing.Has(err), domain.ErrInputInsufficient.Has(err):
		return OutcomeMissing
	default:
		return OutcomeFailed
	}
}
