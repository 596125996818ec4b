package source

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
)

// Arity is the number of raw files a candidate turns into one product.
type Arity int

const (
	// Single takes one daily file, the newest upload.
	Single Arity = iota
	// Many takes every file of the day, e.g. hourly chunks.
	Many
)

// Transform narrows fetched inputs to the usable ones.
type Transform func(ctx context.Context, req Request, inputs []Input) ([]Input, error)

// Candidate is one raw data source option for a product kind.
type Candidate struct {
	Name       string
	Instrument string
	Arity      Arity
	// Filter drops queried records before anything is fetched.
	Filter    func(domain.RawRecord) bool
	Transform Transform
}

// Cascade tries candidates in order. The first candidate with usable
// input wins and later candidates are never consulted.
type Cascade []Candidate

var errNoInput = errors.New("no usable input")

// Select returns the inputs of the first candidate with usable input, or
// domain.ErrRawMissing when none has any.
func (c Cascade) Select(ctx context.Context, env Env, req Request) (*InputSet, error) {
	var tried []string
	for _, cand := range c {
		set, err := cand.selectFrom(ctx, env, req)
		if err == nil {
			return set, nil
		}
		if !errors.Is(err, errNoInput) {
			return nil, err
		}
		logger.CtxDebug(ctx, "Candidate %s has no usable input", cand.Name)
		tried = append(tried, cand.Name)
	}
	return nil, domain.ErrRawMissing.New("no usable input from %s", strings.Join(tried, ", "))
}

func (c Candidate) selectFrom(ctx context.Context, env Env, req Request) (*InputSet, error) {
	recs, err := env.Directory.QueryRaw(ctx, domain.RawFilter{
		Site:            req.Site.ID,
		MeasurementDate: req.Date,
		Instrument:      c.Instrument,
	})
	if err != nil {
		return nil, err
	}
	if c.Filter != nil {
		recs = filterRecords(recs, c.Filter)
	}
	if len(recs) == 0 {
		return nil, errNoInput
	}

	var inputs []Input
	if c.Arity == Single {
		sortNewestFirst(recs)
		if inputs, err = fetchFirst(ctx, env.Fetcher, req.Dir, recs); err != nil {
			return nil, err
		}
		// Only the fetched record is consumed; older uploads never make it fresh.
		if req.RequireFresh && len(inputs) > 0 && inputs[0].Record.Status != domain.RawStatusUploaded {
			return nil, domain.ErrAlreadyProcessed.New("newest %s file %s already processed", c.Name, inputs[0].Record.Filename)
		}
	} else {
		if req.RequireFresh && !anyUploaded(recs) {
			return nil, domain.ErrAlreadyProcessed.New("all %d %s files already processed", len(recs), c.Name)
		}
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Filename < recs[j].Filename })
		if inputs, err = fetchAll(ctx, env.Fetcher, req.Dir, recs); err != nil {
			return nil, err
		}
	}

	if c.Transform != nil && len(inputs) > 0 {
		if inputs, err = c.Transform(ctx, req, inputs); err != nil {
			return nil, err
		}
	}
	if len(inputs) == 0 {
		return nil, errNoInput
	}
	return &InputSet{Candidate: c.Name, Instrument: c.Instrument, Inputs: inputs}, nil
}

// fetchFirst returns the first record that can be fetched.
func fetchFirst(ctx context.Context, f Fetcher, dir string, recs []domain.RawRecord) ([]Input, error) {
	for _, rec := range recs {
		path, err := f.FetchRaw(ctx, rec, dir)
		if domain.ErrNotFound.Has(err) {
			logger.CtxWarn(ctx, "Raw file %s missing from store", rec.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return []Input{{Record: rec, Path: path}}, nil
	}
	return nil, nil
}

// fetchAll fetches every record, skipping those missing from the store.
func fetchAll(ctx context.Context, f Fetcher, dir string, recs []domain.RawRecord) ([]Input, error) {
	var inputs []Input
	for _, rec := range recs {
		path, err := f.FetchRaw(ctx, rec, dir)
		if domain.ErrNotFound.Has(err) {
			logger.CtxWarn(ctx, "Raw file %s missing from store", rec.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, Input{Record: rec, Path: path})
	}
	return inputs, nil
}

// ValidChunks keeps only inputs the validator accepts. Rejected chunks are
// not consumed and stay uploaded.
func ValidChunks(v Validator) Transform {
	return func(ctx context.Context, req Request, inputs []Input) ([]Input, error) {
		kept := make([]Input, 0, len(inputs))
		for _, in := range inputs {
			ok, reason, err := v.ValidateRaw(ctx, in.Record.Instrument, req.Date, in.Path)
			if err != nil {
				return nil, err
			}
			if !ok {
				logger.CtxWarn(ctx, "Dropping invalid chunk %s: %s", in.Record.Filename, reason)
				continue
			}
			kept = append(kept, in)
		}
		return kept, nil
	}
}

// SuffixFilter keeps records whose filename ends with suffix, ignoring case.
func SuffixFilter(suffix string) func(domain.RawRecord) bool {
	suffix = strings.ToLower(suffix)
	return func(rec domain.RawRecord) bool {
		return strings.HasSuffix(strings.ToLower(rec.Filename), suffix)
	}
}

func filterRecords(recs []domain.RawRecord, keep func(domain.RawRecord) bool) []domain.RawRecord {
	out := recs[:0:0]
	for _, r := range recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func anyUploaded(recs []domain.RawRecord) bool {
	for _, r := range recs {
		if r.Status == domain.RawStatusUploaded {
			return true
		}
	}
	return false
}

func sortNewestFirst(recs []domain.RawRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].Filename < recs[j].Filename
	})
}
