package source

import (
	"context"
	"sort"

	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
)

// ModelRanking picks the single best-ranked model file of the day. Files of
// models missing from the ranking are ignored. When the best file is gone
// from the store, the next best is used.
type ModelRanking struct {
	Ranking domain.ModelRanking
}

type rankedRecord struct {
	rec  domain.RawRecord
	rank int
}

// Select returns the best-ranked model file that can be fetched.
func (m ModelRanking) Select(ctx context.Context, env Env, req Request) (*InputSet, error) {
	recs, err := env.Directory.QueryRaw(ctx, domain.RawFilter{
		Site:            req.Site.ID,
		MeasurementDate: req.Date,
		HasModel:        true,
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedRecord, 0, len(recs))
	for _, rec := range recs {
		rank, ok := m.Ranking.Rank(rec.Model)
		if !ok {
			logger.CtxDebug(ctx, "Ignoring file %s of unranked model %s", rec.Filename, rec.Model)
			continue
		}
		ranked = append(ranked, rankedRecord{rec: rec, rank: rank})
	}
	if len(ranked) == 0 {
		return nil, domain.ErrRawMissing.New("no model files of a ranked model")
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.rec.Filename < b.rec.Filename
	})

	if req.RequireFresh && ranked[0].rec.Status != domain.RawStatusUploaded {
		return nil, domain.ErrAlreadyProcessed.New("best model file %s already processed", ranked[0].rec.Filename)
	}

	for _, r := range ranked {
		path, err := env.Fetcher.FetchRaw(ctx, r.rec, req.Dir)
		if domain.ErrNotFound.Has(err) {
			logger.CtxWarn(ctx, "Model file %s missing from store, trying next", r.rec.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return &InputSet{
			Candidate: r.rec.Model,
			Model:     r.rec.Model,
			Inputs:    []Input{{Record: r.rec, Path: path}},
		}, nil
	}
	return nil, domain.ErrRawMissing.New("no model file could be fetched")
}
