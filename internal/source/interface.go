// Package source selects the raw input files for level-1 products.
//
// Every level-1 product kind owns a Strategy. Most strategies are cascades
// of candidates tried in priority order; model data is instead ranked by
// the configured model order.
package source

import (
	"context"

	"github.com/timmy/cloudnet/internal/domain"
)

// RawQuerier lists raw records from the metadata directory.
type RawQuerier interface {
	QueryRaw(ctx context.Context, filter domain.RawFilter) ([]domain.RawRecord, error)
}

// Fetcher downloads raw files. A missing object is domain.ErrNotFound.
type Fetcher interface {
	FetchRaw(ctx context.Context, rec domain.RawRecord, destDir string) (string, error)
}

// Validator checks whether one raw file is structurally usable.
type Validator interface {
	ValidateRaw(ctx context.Context, instrument, date, path string) (ok bool, reason string, err error)
}

// Input is one fetched raw file.
type Input struct {
	Record domain.RawRecord
	Path   string
}

// InputSet is the winning selection for one processing unit.
type InputSet struct {
	Candidate  string
	Instrument string
	Model      string
	Inputs     []Input
}

// RecordIDs returns the ids of the consumed raw records.
func (s *InputSet) RecordIDs() []string {
	ids := make([]string, len(s.Inputs))
	for i, in := range s.Inputs {
		ids[i] = in.Record.ID
	}
	return ids
}

// Request is the context of one selection.
type Request struct {
	Site domain.Site
	Date string
	// Dir is the unit's temporary directory that receives fetched files.
	Dir string
	// RequireFresh makes a winner whose consumable records are all processed
	// yield domain.ErrAlreadyProcessed instead of an input set. Single-file
	// winners are judged by the one file they would consume.
	RequireFresh bool
}

// Env gives strategies access to the metadata directory and raw store.
type Env struct {
	Directory RawQuerier
	Fetcher   Fetcher
}

// Strategy selects raw inputs for one product kind. It returns
// domain.ErrRawMissing when nothing usable exists.
type Strategy interface {
	Select(ctx context.Context, env Env, req Request) (*InputSet, error)
}
