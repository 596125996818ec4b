package service

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/source"
)

func TestProcess_RadarFallsBackToMira(t *testing.T) {
	f := newFixture(t)
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")

	reports := f.run(f.service(), ProcessOptions{}, domain.KindRadar)

	assert.Equal(t, OutcomeCreated, reports[0].Outcome)
	require.Equal(t, 1, f.converter.callCount())
	call := f.converter.calls[0]
	assert.Equal(t, source.InstrumentMira, call.Instrument)
	assert.Empty(t, call.UUID)
	require.Len(t, call.Inputs, 1)
	assert.Equal(t, "raw", call.Inputs[0].Role)

	recs := f.products(domain.KindRadar, false)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.VersionVolatile, recs[0].Version)
	assert.Equal(t, reports[0].UUID, recs[0].UUID)
	assert.Equal(t, "20201022_bucharest_mira.nc", recs[0].Filename)
	assert.Equal(t, []string{"mira-1"}, []string(recs[0].SourceRawIDs))
	assert.Empty(t, recs[0].PID)
	assert.Equal(t, domain.RawStatusProcessed, f.rawStatus("mira-1"))

	exists, _ := f.volatile.Exists(context.Background(), recs[0].Filename)
	assert.True(t, exists)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Units.WithLabelValues("radar", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RawProcessed))
}

func TestProcess_FallbackLeavesPreferredUntouched(t *testing.T) {
	f := newFixture(t)
	rpg := f.addRaw("rpg-1", source.InstrumentRPG, "", "201022_000000_P05_ZEN.LV1")
	require.NoError(t, f.raw.Delete(context.Background(), rpg.S3Key))
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")

	reports := f.run(f.service(), ProcessOptions{}, domain.KindRadar)

	assert.Equal(t, OutcomeCreated, reports[0].Outcome)
	assert.Equal(t, source.InstrumentMira, f.converter.calls[0].Instrument)
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("rpg-1"))
	assert.Equal(t, domain.RawStatusProcessed, f.rawStatus("mira-1"))
}

func TestProcess_VolatileRerunKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.addRaw("rpg-1", source.InstrumentRPG, "", "201022_000000.LV1")
	first := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]
	require.Equal(t, OutcomeCreated, first.Outcome)

	// A new chunk arrives; the daily file is rebuilt from all chunks.
	f.addRaw("rpg-2", source.InstrumentRPG, "", "201022_010000.LV1")
	second := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, first.UUID, f.converter.calls[1].UUID)
	assert.Len(t, f.converter.calls[1].Inputs, 2)

	// Reprocessing a volatile product also reuses its identity.
	third := f.run(svc, ProcessOptions{Reprocess: true}, domain.KindRadar)[0]
	assert.Equal(t, OutcomeUpdated, third.Outcome)
	assert.Equal(t, first.UUID, third.UUID)

	recs := f.products(domain.KindRadar, true)
	require.Len(t, recs, 1)
	assert.Equal(t, first.UUID, recs[0].UUID)
	assert.Equal(t, domain.RawStatusProcessed, f.rawStatus("rpg-2"))
}

func TestProcess_VolatileWithConsumedInputsSkips(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")
	f.run(svc, ProcessOptions{}, domain.KindRadar)

	rep := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]
	assert.Equal(t, OutcomeSkipped, rep.Outcome)
	assert.True(t, domain.ErrAlreadyProcessed.Has(rep.Err))
	assert.Equal(t, 1, f.converter.callCount())
}

func TestProcess_OlderSingleUploadDoesNotRetrigger(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.addRaw("mira-old", source.InstrumentMira, "", "20201022_0000.mmclx")
	require.NoError(t, f.db.Model(&domain.RawRecord{}).Where("id = ?", "mira-old").
		Update("created_at", testDate).Error)
	f.addRaw("mira-new", source.InstrumentMira, "", "20201022_1200.mmclx")

	first := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]
	require.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, domain.RawStatusProcessed, f.rawStatus("mira-new"))
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-old"))

	for i := 0; i < 2; i++ {
		rep := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]
		assert.Equal(t, OutcomeSkipped, rep.Outcome)
		assert.True(t, domain.ErrAlreadyProcessed.Has(rep.Err))
	}
	assert.Equal(t, 1, f.converter.callCount())
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-old"))
}

func TestProcess_FrozenWithoutReprocessSkips(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")
	frozen := f.run(svc, ProcessOptions{Freeze: true}, domain.KindRadar)[0]
	require.Equal(t, OutcomeFrozen, frozen.Outcome)
	before := f.products(domain.KindRadar, true)

	f.addRaw("mira-2", source.InstrumentMira, "", "20201022_1200.mmclx")
	rep := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]

	assert.Equal(t, OutcomeSkipped, rep.Outcome)
	assert.True(t, domain.ErrFrozen.Has(rep.Err))
	assert.Equal(t, 1, f.converter.callCount())
	assert.Equal(t, before, f.products(domain.KindRadar, true))
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-2"))
}

func TestProcess_FrozenReprocessSupersedes(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")
	old := f.run(svc, ProcessOptions{Freeze: true}, domain.KindRadar)[0]
	oldRec, err := f.directory.Products().GetByUUID(context.Background(), old.UUID)
	require.NoError(t, err)
	require.NotEmpty(t, oldRec.PID)

	rep := f.run(svc, ProcessOptions{Reprocess: true}, domain.KindRadar)[0]
	assert.Equal(t, OutcomeFrozen, rep.Outcome)
	assert.NotEqual(t, old.UUID, rep.UUID)
	assert.Empty(t, f.converter.calls[1].UUID, "a new identity is minted")

	current := f.products(domain.KindRadar, false)
	require.Len(t, current, 1)
	assert.Equal(t, rep.UUID, current[0].UUID)
	assert.NotEmpty(t, current[0].PID)
	assert.NotEqual(t, oldRec.PID, current[0].PID)

	// The superseded record and its exact file version stay retrievable.
	prev, err := f.directory.Products().GetByUUID(context.Background(), old.UUID)
	require.NoError(t, err)
	assert.False(t, prev.Current)
	assert.Equal(t, oldRec.PID, prev.PID)

	path, err := f.archive.FetchProduct(context.Background(), *prev, t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "uuid="+old.UUID)
	assert.Contains(t, string(data), "pid="+oldRec.PID)
}

func TestProcess_PublishFailureLeavesRawUploaded(t *testing.T) {
	f := newFixture(t)
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")

	svc := f.serviceWith(f.directory, failingStore{Store: f.archive})
	rep := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]

	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, domain.ErrPublish.Has(rep.Err))
	assert.Empty(t, f.products(domain.KindRadar, true))
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-1"))
}

func TestProcess_RecordFailureLeavesRawUploaded(t *testing.T) {
	f := newFixture(t)
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")

	svc := f.serviceWith(unrecordedDirectory{Directory: f.directory}, f.archive)
	rep := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]

	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, domain.ErrPublish.Has(rep.Err))
	assert.Empty(t, f.products(domain.KindRadar, true))
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-1"))
}

func TestProcess_Level2WithoutCategorize(t *testing.T) {
	f := newFixture(t)
	f.addLevel1()

	reports := f.run(f.service(), ProcessOptions{}, domain.KindClassification, domain.KindIWC)

	for _, rep := range reports {
		assert.Equal(t, OutcomeMissing, rep.Outcome)
		assert.True(t, domain.ErrDerivedMissing.Has(rep.Err))
		assert.Contains(t, rep.String(), "missing input")
	}
	assert.Zero(t, f.converter.callCount())
	assert.Empty(t, f.products("", true))
	assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-1"))
}

func TestProcess_FullChain(t *testing.T) {
	f := newFixture(t)
	f.addLevel1()

	reports := f.run(f.service(), ProcessOptions{}, domain.AllKinds()...)
	for _, rep := range reports {
		assert.Equal(t, OutcomeCreated, rep.Outcome, rep.String())
	}

	var categorize ConvertRequest
	for _, c := range f.converter.calls {
		if c.Kind == domain.KindCategorize {
			categorize = c
		}
	}
	roles := make([]string, len(categorize.Inputs))
	for i, in := range categorize.Inputs {
		roles[i] = in.Role
	}
	assert.Equal(t, []string{"radar", "lidar", "mwr", "model"}, roles)

	cat := f.products(domain.KindCategorize, false)
	require.Len(t, cat, 1)
	assert.Equal(t, "20201022_bucharest_categorize.nc", cat[0].Filename)
	assert.Len(t, cat[0].SourceFileUUIDs, 4)
	assert.Empty(t, cat[0].SourceRawIDs)

	model := f.products(domain.KindModel, false)
	require.Len(t, model, 1)
	assert.Equal(t, "20201022_bucharest_ecmwf.nc", model[0].Filename)
	assert.Equal(t, "ecmwf", model[0].Model)

	iwc := f.products(domain.KindIWC, false)
	require.Len(t, iwc, 1)
	assert.Equal(t, "20201022_bucharest_iwc-Z-T-method.nc", iwc[0].Filename)
	assert.Equal(t, []string{cat[0].UUID}, []string(iwc[0].SourceFileUUIDs))
}

func TestProcess_CategorizeMissingLevel1(t *testing.T) {
	f := newFixture(t)
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")

	reports := f.run(f.service(), ProcessOptions{}, domain.KindRadar, domain.KindCategorize)
	assert.Equal(t, OutcomeCreated, reports[0].Outcome)
	assert.Equal(t, OutcomeMissing, reports[1].Outcome)
	assert.Contains(t, reports[1].Reason, "no lidar product")
	assert.Equal(t, 1, f.converter.callCount())
}

func TestProcess_ConverterOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
	}{
		{"insufficient input", domain.ErrInputInsufficient.New("too few profiles"), OutcomeMissing},
		{"conversion fault", domain.ErrConversion.New("converter returned HTTP 500"), OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")
			f.addRaw("cl51-1", source.InstrumentCL51, "", "A2102200.DAT")
			f.converter.errs[domain.KindRadar] = tt.err

			reports := f.run(f.service(), ProcessOptions{}, domain.KindRadar, domain.KindLidar)
			assert.Equal(t, tt.outcome, reports[0].Outcome)
			assert.Equal(t, OutcomeCreated, reports[1].Outcome, "sibling units are unaffected")
			assert.Equal(t, domain.RawStatusUploaded, f.rawStatus("mira-1"))
			assert.Equal(t, domain.RawStatusProcessed, f.rawStatus("cl51-1"))
		})
	}
}

func TestProcess_NoRawData(t *testing.T) {
	f := newFixture(t)
	reports := f.run(f.service(), ProcessOptions{}, domain.Level1Kinds()...)
	for _, rep := range reports {
		assert.Equal(t, OutcomeMissing, rep.Outcome)
		assert.True(t, domain.ErrRawMissing.Has(rep.Err))
	}
}

func TestProcess_DirectoryFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.addLevel1()
	svc := f.serviceWith(brokenDirectory{Directory: f.directory}, f.archive)

	var reports []Report
	stats, err := svc.Run(context.Background(), testSite, testDay, domain.AllKinds(), ProcessOptions{}, func(r Report) {
		reports = append(reports, r)
	})
	assert.True(t, domain.ErrDirectory.Has(err))
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, stats.Failed())
	assert.Zero(t, f.converter.callCount())
}

func TestFreeze(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")
	created := f.run(svc, ProcessOptions{}, domain.KindRadar)[0]

	var reports []Report
	_, err := svc.Freeze(context.Background(), testSite, testDay, []domain.ProductKind{domain.KindRadar, domain.KindLidar}, func(r Report) {
		reports = append(reports, r)
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, OutcomeFrozen, reports[0].Outcome)
	assert.Equal(t, created.UUID, reports[0].UUID)
	assert.Equal(t, OutcomeMissing, reports[1].Outcome)
	assert.Equal(t, 1, f.converter.callCount(), "freezing never reconverts")

	recs := f.products(domain.KindRadar, true)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.VersionFrozen, recs[0].Version)
	assert.NotEmpty(t, recs[0].PID)

	exists, _ := f.volatile.Exists(context.Background(), recs[0].Filename)
	assert.False(t, exists)
	body, err := f.frozen.Download(context.Background(), recs[0].Filename, recs[0].VersionTag)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.True(t, strings.Contains(string(data), "pid="+recs[0].PID))

	// A second freeze skips the already frozen product.
	reports = nil
	_, err = svc.Freeze(context.Background(), testSite, testDay, []domain.ProductKind{domain.KindRadar}, func(r Report) {
		reports = append(reports, r)
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, reports[0].Outcome)
	assert.Equal(t, 1, f.issuer.n)
}

func TestReport_String(t *testing.T) {
	unit := domain.ProcessingUnit{Site: testSite, Date: testDate, Product: domain.KindRadar}
	assert.Equal(t, "bucharest 2020-10-22 radar: Created abc", Report{Unit: unit, Outcome: OutcomeCreated, UUID: "abc"}.String())

	rep := reportError(unit, domain.ErrRawMissing.New("no usable input from rpg-fmcw-94, mira"))
	assert.Equal(t, OutcomeMissing, rep.Outcome)
	assert.Equal(t, "bucharest 2020-10-22 radar: Missing (raw data missing: no usable input from rpg-fmcw-94, mira)", rep.String())
}
