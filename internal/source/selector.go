package source

import (
	"context"

	"github.com/timmy/cloudnet/internal/domain"
)

// Instrument identifiers of the supported raw sources.
const (
	InstrumentRPG    = "rpg-fmcw-94"
	InstrumentMira   = "mira"
	InstrumentCHM15k = "chm15k"
	InstrumentCL51   = "cl51"
	InstrumentHatpro = "hatpro"
)

// HatproSuffix selects the liquid water path files of HATPRO radiometers.
const HatproSuffix = ".lwp.nc"

// DefaultStrategies returns the selection strategy of every level-1 kind.
func DefaultStrategies(v Validator, ranking domain.ModelRanking) map[domain.ProductKind]Strategy {
	return map[domain.ProductKind]Strategy{
		domain.KindRadar: Cascade{
			{Name: InstrumentRPG, Instrument: InstrumentRPG, Arity: Many},
			{Name: InstrumentMira, Instrument: InstrumentMira, Arity: Single},
		},
		domain.KindLidar: Cascade{
			{Name: InstrumentCHM15k, Instrument: InstrumentCHM15k, Arity: Many, Transform: ValidChunks(v)},
			{Name: InstrumentCL51, Instrument: InstrumentCL51, Arity: Single},
		},
		domain.KindMWR: Cascade{
			{Name: InstrumentHatpro, Instrument: InstrumentHatpro, Arity: Single, Filter: SuffixFilter(HatproSuffix)},
		},
		domain.KindModel: ModelRanking{Ranking: ranking},
	}
}

// Selector dispatches selection to the strategy of a product kind.
type Selector struct {
	env        Env
	strategies map[domain.ProductKind]Strategy
}

// NewSelector creates a Selector. Every level-1 kind must have a strategy.
func NewSelector(dir RawQuerier, fetcher Fetcher, strategies map[domain.ProductKind]Strategy) (*Selector, error) {
	for _, kind := range domain.Level1Kinds() {
		if _, ok := strategies[kind]; !ok {
			return nil, domain.ErrConfig.New("no source strategy for %s", kind)
		}
	}
	return &Selector{
		env:        Env{Directory: dir, Fetcher: fetcher},
		strategies: strategies,
	}, nil
}

// Select returns the inputs of kind for the requested site and date.
func (s *Selector) Select(ctx context.Context, kind domain.ProductKind, req Request) (*InputSet, error) {
	strategy, ok := s.strategies[kind]
	if !ok {
		return nil, domain.ErrConfig.New("%s is not a level-1 product", kind)
	}
	return strategy.Select(ctx, s.env, req)
}
