package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/observability"
	"github.com/timmy/cloudnet/internal/source"
	"github.com/timmy/cloudnet/internal/storage"
)

// Directory is the metadata catalog used by the pipeline.
type Directory interface {
	source.RawQuerier
	ProductQuerier
	PutProduct(ctx context.Context, rec *domain.ProductRecord, supersedes string) error
	PostStatus(ctx context.Context, rawID string, status domain.RawStatus) error
}

// Store moves raw and product files between object storage and disk.
type Store interface {
	source.Fetcher
	FetchProduct(ctx context.Context, rec domain.ProductRecord, destDir string) (string, error)
	UploadProduct(ctx context.Context, localPath, key string, frozen bool) (*storage.UploadInfo, error)
	DeleteProduct(ctx context.Context, key string, frozen bool) error
}

// Selector picks raw inputs for level-1 kinds.
type Selector interface {
	Select(ctx context.Context, kind domain.ProductKind, req source.Request) (*source.InputSet, error)
}

// Identity embeds a permanent identifier into a product file.
type Identity interface {
	Assign(ctx context.Context, path, uuid string) (string, error)
}

// ProcessOptions controls one run.
type ProcessOptions struct {
	// Reprocess allows superseding frozen products and reconsuming
	// processed raw files.
	Reprocess bool
	// Freeze publishes every produced file with a permanent identifier.
	Freeze bool
}

// ProcessConfig holds configuration for the process service.
type ProcessConfig struct {
	TempDir string
}

// ProcessService is the pipeline orchestrator. It works through
// (date, product) units one at a time; a failing unit never stops the
// loop unless the metadata directory itself is unreachable.
type ProcessService struct {
	directory Directory
	store     Store
	selector  Selector
	converter Converter
	identity  Identity
	resolver  *StatusResolver
	metrics   *observability.Metrics
	tempDir   string
}

// NewProcessService creates a new process service.
func NewProcessService(
	directory Directory,
	store Store,
	selector Selector,
	converter Converter,
	identity Identity,
	metrics *observability.Metrics,
	cfg *ProcessConfig,
) *ProcessService {
	return &ProcessService{
		directory: directory,
		store:     store,
		selector:  selector,
		converter: converter,
		identity:  identity,
		resolver:  NewStatusResolver(directory),
		metrics:   metrics,
		tempDir:   cfg.TempDir,
	}
}

// RunStats counts unit outcomes of a run.
type RunStats struct {
	Units     int
	Outcomes  map[Outcome]int
	StartTime time.Time
	EndTime   time.Time
}

func newRunStats() *RunStats {
	return &RunStats{Outcomes: make(map[Outcome]int), StartTime: time.Now()}
}

func (s *RunStats) add(r Report) {
	s.Units++
	s.Outcomes[r.Outcome]++
}

// Failed returns the number of units that ended in Failed.
func (s *RunStats) Failed() int {
	return s.Outcomes[OutcomeFailed]
}

type unitFunc func(ctx context.Context, unit domain.ProcessingUnit, dir string) Report

// Run processes every date in dates and every kind in kinds, in the given
// order, for one site. report receives one Report per unit. Only a
// domain.ErrDirectory failure or cancellation ends the run early.
func (s *ProcessService) Run(ctx context.Context, site domain.Site, dates domain.DateRange, kinds []domain.ProductKind, opts ProcessOptions, report func(Report)) (*RunStats, error) {
	return s.loop(ctx, site, dates, kinds, report, func(ctx context.Context, unit domain.ProcessingUnit, dir string) Report {
		return s.processUnit(ctx, unit, opts, dir)
	})
}

// Freeze assigns permanent identifiers to the current volatile products of
// one site without reconverting them.
func (s *ProcessService) Freeze(ctx context.Context, site domain.Site, dates domain.DateRange, kinds []domain.ProductKind, report func(Report)) (*RunStats, error) {
	return s.loop(ctx, site, dates, kinds, report, s.freezeUnit)
}

func (s *ProcessService) loop(ctx context.Context, site domain.Site, dates domain.DateRange, kinds []domain.ProductKind, report func(Report), fn unitFunc) (*RunStats, error) {
	stats := newRunStats()
	ctx = logger.SetSite(ctx, site.ID)

	for _, date := range dates.Dates() {
		for _, kind := range kinds {
			if err := ctx.Err(); err != nil {
				stats.EndTime = time.Now()
				return stats, err
			}

			rep := s.runUnit(ctx, domain.ProcessingUnit{Site: site, Date: date, Product: kind}, fn)
			stats.add(rep)
			if report != nil {
				report(rep)
			}
			if domain.ErrDirectory.Has(rep.Err) {
				stats.EndTime = time.Now()
				return stats, rep.Err
			}
		}
	}

	stats.EndTime = time.Now()
	logger.With(logger.Fields{
		logger.FieldCount: stats.Units,
		"failed":          stats.Failed(),
	}).WithDuration(stats.StartTime).Info(ctx, "Site run completed")
	return stats, nil
}

// ProcessUnit runs a single unit.
func (s *ProcessService) ProcessUnit(ctx context.Context, unit domain.ProcessingUnit, opts ProcessOptions) Report {
	return s.runUnit(ctx, unit, func(ctx context.Context, unit domain.ProcessingUnit, dir string) Report {
		return s.processUnit(ctx, unit, opts, dir)
	})
}

// runUnit gives fn a private temporary directory that is removed when the
// unit ends, whatever the outcome.
func (s *ProcessService) runUnit(ctx context.Context, unit domain.ProcessingUnit, fn unitFunc) Report {
	start := time.Now()
	ctx = logger.SetUnit(ctx, unit.Site.ID, unit.DateString(), string(unit.Product))

	var rep Report
	dir, err := os.MkdirTemp(s.tempDir, "unit-")
	if err != nil {
		rep = reportError(unit, fmt.Errorf("failed to create temp dir: %w", err))
	} else {
		defer os.RemoveAll(dir)
		rep = fn(ctx, unit, dir)
	}
	rep.Duration = time.Since(start)

	s.metrics.Units.WithLabelValues(string(unit.Product), strings.ToLower(string(rep.Outcome))).Inc()
	s.metrics.UnitDuration.WithLabelValues(string(unit.Product)).Observe(rep.Duration.Seconds())

	entry := logger.With(logger.Fields{
		logger.FieldStatus: string(rep.Outcome),
		logger.FieldUUID:   rep.UUID,
	}).WithDuration(start)
	switch rep.Outcome {
	case OutcomeFailed:
		entry.Error(ctx, "Unit failed: %s", rep.Reason)
	case OutcomeSkipped, OutcomeMissing:
		entry.Info(ctx, "Unit not processed: %s", rep.Reason)
	default:
		entry.Info(ctx, "Unit completed")
	}
	return rep
}

// resolved holds everything a unit needs from its inputs.
type resolved struct {
	inputs     []ConvertInput
	instrument string
	model      string
	identifier string
	consumed   []domain.RawRecord
	sourceIDs  []string
}

func (s *ProcessService) processUnit(ctx context.Context, unit domain.ProcessingUnit, opts ProcessOptions, dir string) Report {
	status, err := s.resolver.Resolve(ctx, unit, opts.Reprocess)
	if err != nil {
		return reportError(unit, err)
	}
	if status.State == StateFrozenBlocked {
		return reportError(unit, domain.ErrFrozen.New("%s is frozen, reprocess not requested", status.ExistingUUID()))
	}

	def, ok := domain.LookupKind(unit.Product)
	if !ok {
		return reportError(unit, domain.ErrConfig.New("unknown product %s", unit.Product))
	}

	var in *resolved
	if unit.Product.IsRaw() {
		in, err = s.resolveRaw(ctx, unit, status, opts, filepath.Join(dir, "raw"))
	} else {
		in, err = s.resolveDerived(ctx, unit, def, filepath.Join(dir, "products"))
	}
	if err != nil {
		return reportError(unit, err)
	}

	reuse := ""
	if status.State == StateVolatile {
		reuse = status.ExistingUUID()
	}
	freeze := opts.Freeze || status.State == StateFrozenReprocess
	key := domain.ProductKey(unit.Date, unit.Site.ID, in.identifier)

	convertStart := time.Now()
	result, err := s.converter.Convert(ctx, ConvertRequest{
		Kind:       unit.Product,
		Site:       unit.Site,
		Date:       unit.DateString(),
		Instrument: in.instrument,
		Model:      in.model,
		UUID:       reuse,
		Inputs:     in.inputs,
		OutputPath: filepath.Join(dir, "out", key),
	})
	s.metrics.ConvertDuration.WithLabelValues(string(unit.Product)).Observe(time.Since(convertStart).Seconds())
	if err != nil {
		return reportError(unit, err)
	}

	rec := &domain.ProductRecord{
		UUID:            result.UUID,
		Site:            unit.Site.ID,
		MeasurementDate: unit.DateString(),
		Product:         unit.Product,
		Instrument:      in.instrument,
		Model:           in.model,
		Filename:        key,
		Version:         domain.VersionVolatile,
		Format:          result.Format,
		SourceRawIDs:    recordIDs(in.consumed),
		SourceFileUUIDs: result.SourceFileUUIDs,
	}
	if len(rec.SourceFileUUIDs) == 0 {
		rec.SourceFileUUIDs = in.sourceIDs
	}

	if freeze {
		pid, err := s.identity.Assign(ctx, result.Path, result.UUID)
		if err != nil {
			return reportError(unit, err)
		}
		rec.PID = pid
		rec.Version = domain.VersionFrozen
	}

	supersedes := ""
	if status.State == StateFrozenReprocess {
		supersedes = status.Existing.UUID
	}
	if err := s.publish(ctx, rec, result.Path, supersedes); err != nil {
		return reportError(unit, err)
	}
	if status.State == StateVolatile && (freeze || status.Existing.Filename != key) {
		s.dropVolatile(ctx, status.Existing.Filename)
	}

	if err := s.markProcessed(ctx, in.consumed); err != nil {
		return reportError(unit, domain.ErrPublish.New("published %s but failed to advance raw files: %v", rec.UUID, err))
	}

	outcome := OutcomeCreated
	switch {
	case freeze:
		outcome = OutcomeFrozen
	case status.State == StateVolatile:
		outcome = OutcomeUpdated
	}
	return Report{Unit: unit, Outcome: outcome, UUID: rec.UUID}
}

func (s *ProcessService) resolveRaw(ctx context.Context, unit domain.ProcessingUnit, status Status, opts ProcessOptions, dir string) (*resolved, error) {
	set, err := s.selector.Select(ctx, unit.Product, source.Request{
		Site:         unit.Site,
		Date:         unit.DateString(),
		Dir:          dir,
		RequireFresh: status.State == StateVolatile && !opts.Reprocess,
	})
	if err != nil {
		return nil, err
	}

	in := &resolved{
		instrument: set.Instrument,
		model:      set.Model,
		identifier: set.Instrument,
	}
	if unit.Product == domain.KindModel {
		in.identifier = set.Model
	}
	for _, input := range set.Inputs {
		in.inputs = append(in.inputs, ConvertInput{Role: "raw", Path: input.Path})
		in.consumed = append(in.consumed, input.Record)
	}
	return in, nil
}

// resolveDerived fetches one current product of every kind def requires.
func (s *ProcessService) resolveDerived(ctx context.Context, unit domain.ProcessingUnit, def domain.KindSpec, dir string) (*resolved, error) {
	in := &resolved{identifier: def.Identifier}
	for _, kind := range def.Requires {
		recs, err := s.directory.QueryProducts(ctx, domain.ProductFilter{
			Site:            unit.Site.ID,
			MeasurementDate: unit.DateString(),
			Product:         kind,
		})
		if err != nil {
			return nil, err
		}
		switch len(recs) {
		case 0:
			return nil, domain.ErrDerivedMissing.New("no %s product", kind)
		case 1:
		default:
			return nil, domain.ErrIntegrity.New("%d current %s records", len(recs), kind)
		}

		path, err := s.store.FetchProduct(ctx, recs[0], dir)
		if domain.ErrNotFound.Has(err) {
			return nil, domain.ErrDerivedMissing.New("%s file %s missing from store", kind, recs[0].Filename)
		}
		if err != nil {
			return nil, err
		}
		in.inputs = append(in.inputs, ConvertInput{Role: string(kind), Path: path})
		in.sourceIDs = append(in.sourceIDs, recs[0].UUID)
	}
	return in, nil
}

func (s *ProcessService) freezeUnit(ctx context.Context, unit domain.ProcessingUnit, dir string) Report {
	status, err := s.resolver.Resolve(ctx, unit, false)
	if err != nil {
		return reportError(unit, err)
	}
	switch status.State {
	case StateAbsent:
		return reportError(unit, domain.ErrDerivedMissing.New("no product to freeze"))
	case StateFrozenBlocked:
		return Report{Unit: unit, Outcome: OutcomeSkipped, UUID: status.ExistingUUID(), Reason: "already frozen"}
	}

	existing := *status.Existing
	path, err := s.store.FetchProduct(ctx, existing, dir)
	if err != nil {
		return reportError(unit, domain.ErrPublish.Wrap(err))
	}
	pid, err := s.identity.Assign(ctx, path, existing.UUID)
	if err != nil {
		return reportError(unit, err)
	}

	rec := existing
	rec.PID = pid
	rec.Version = domain.VersionFrozen
	if err := s.publish(ctx, &rec, path, ""); err != nil {
		return reportError(unit, err)
	}
	s.dropVolatile(ctx, existing.Filename)
	return Report{Unit: unit, Outcome: OutcomeFrozen, UUID: rec.UUID}
}

// publish uploads the file and records it. Nothing is recorded when the
// upload fails.
func (s *ProcessService) publish(ctx context.Context, rec *domain.ProductRecord, path, supersedes string) error {
	sums, err := storage.HashFile(path)
	if err != nil {
		return domain.ErrPublish.Wrap(err)
	}
	info, err := s.store.UploadProduct(ctx, path, rec.Filename, rec.Frozen())
	if err != nil {
		return domain.ErrPublish.Wrap(err)
	}
	rec.Checksum = sums.SHA256
	rec.Size = info.Size
	rec.VersionTag = info.VersionTag

	if err := s.directory.PutProduct(ctx, rec, supersedes); err != nil {
		// The stored object stays; a versioned key cannot be rolled back
		// without hiding earlier versions.
		logger.With(logger.Fields{
			logger.FieldUUID: rec.UUID,
			"storage_key":    rec.Filename,
			"version_tag":    rec.VersionTag,
		}).Error(ctx, "Product object stored but not recorded: %v", err)
		return domain.ErrPublish.Wrap(err)
	}
	logger.With(logger.Fields{
		logger.FieldUUID: rec.UUID,
		logger.FieldSize: rec.Size,
	}).Debug(ctx, "Published %s as %s", rec.Filename, rec.Version)
	return nil
}

func (s *ProcessService) dropVolatile(ctx context.Context, key string) {
	if err := s.store.DeleteProduct(ctx, key, false); err != nil {
		logger.CtxWarn(ctx, "Failed to delete volatile object %s: %v", key, err)
	}
}

func (s *ProcessService) markProcessed(ctx context.Context, recs []domain.RawRecord) error {
	for _, rec := range recs {
		if rec.Status == domain.RawStatusProcessed {
			continue
		}
		if err := s.directory.PostStatus(ctx, rec.ID, domain.RawStatusProcessed); err != nil {
			return err
		}
		s.metrics.RawProcessed.Inc()
	}
	return nil
}

func recordIDs(recs []domain.RawRecord) domain.StringArray {
	if len(recs) == 0 {
		return nil
	}
	ids := make(domain.StringArray, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
