package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/observability"
	"github.com/timmy/cloudnet/internal/repository"
	"github.com/timmy/cloudnet/internal/source"
	"github.com/timmy/cloudnet/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	testSite = domain.Site{ID: "bucharest", Name: "Bucharest", Latitude: 44.348, Longitude: 26.029, Altitude: 93}
	testDate = time.Date(2020, 10, 22, 0, 0, 0, 0, time.UTC)
	testDay  = domain.DateRange{Start: testDate, Stop: testDate.AddDate(0, 0, 1)}
)

// fakeConverter writes a small text file standing in for a product.
type fakeConverter struct {
	mu    sync.Mutex
	calls []ConvertRequest
	errs  map[domain.ProductKind]error
}

func (c *fakeConverter) Convert(_ context.Context, req ConvertRequest) (*ConvertResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if err := c.errs[req.Kind]; err != nil {
		return nil, err
	}
	id := req.UUID
	if id == "" {
		id = uuid.New().String()
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, err
	}
	body := fmt.Sprintf("kind=%s\nuuid=%s\ninputs=%d\n", req.Kind, id, len(req.Inputs))
	if err := os.WriteFile(req.OutputPath, []byte(body), 0o644); err != nil {
		return nil, err
	}
	return &ConvertResult{Path: req.OutputPath, UUID: id, Format: "NetCDF4"}, nil
}

func (c *fakeConverter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeAttributes keeps attributes as key=value lines in the file itself.
type fakeAttributes struct{}

func (fakeAttributes) ReadAttributes(_ context.Context, path string) (*FileAttributes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	attrs := &FileAttributes{}
	for _, line := range strings.Split(string(data), "\n") {
		k, v, _ := strings.Cut(line, "=")
		switch k {
		case "uuid":
			attrs.UUID = v
		case "pid":
			attrs.PID = v
		}
	}
	return attrs, nil
}

func (fakeAttributes) WriteAttributes(_ context.Context, path, pid string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "pid=%s\n", pid)
	return err
}

type fakeIssuer struct {
	mu sync.Mutex
	n  int
}

func (i *fakeIssuer) IssuePID(_ context.Context, id string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.n++
	return fmt.Sprintf("https://hdl.handle.net/21.12132/%d.%s", i.n, id[:8]), nil
}

type acceptAll struct{}

func (acceptAll) ValidateRaw(context.Context, string, string, string) (bool, string, error) {
	return true, "", nil
}

// failingStore fails product uploads.
type failingStore struct {
	Store
}

func (failingStore) UploadProduct(context.Context, string, string, bool) (*storage.UploadInfo, error) {
	return nil, errors.New("bucket unavailable")
}

// brokenDirectory fails every product query.
type brokenDirectory struct {
	Directory
}

func (brokenDirectory) QueryProducts(context.Context, domain.ProductFilter) ([]domain.ProductRecord, error) {
	return nil, domain.ErrDirectory.New("connection refused")
}

// unrecordedDirectory stores nothing for products.
type unrecordedDirectory struct {
	Directory
}

func (unrecordedDirectory) PutProduct(context.Context, *domain.ProductRecord, string) error {
	return errors.New("database is locked")
}

// failingCatalog rejects every raw record.
type failingCatalog struct{}

func (failingCatalog) Create(context.Context, *domain.RawRecord) error {
	return errors.New("db down")
}

func (failingCatalog) ExistsByChecksum(context.Context, string) (bool, error) {
	return false, nil
}

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	directory *repository.Directory
	archive   *storage.Archive
	raw       *storage.MemoryStorage
	frozen    *storage.MemoryStorage
	volatile  *storage.MemoryStorage
	converter *fakeConverter
	issuer    *fakeIssuer
	metrics   *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		t:         t,
		db:        db,
		directory: repository.NewDirectory(db),
		raw:       storage.NewMemoryStorage("cloudnet-upload"),
		frozen:    storage.NewMemoryStorage("cloudnet-product"),
		volatile:  storage.NewMemoryStorage("cloudnet-product-volatile"),
		converter: &fakeConverter{errs: map[domain.ProductKind]error{}},
		issuer:    &fakeIssuer{},
		metrics:   observability.NewMetricsForTesting(),
	}
	f.archive = storage.NewArchive(f.raw, f.frozen, f.volatile)
	return f
}

func (f *fixture) service() *ProcessService {
	return f.serviceWith(f.directory, f.archive)
}

func (f *fixture) serviceWith(dir Directory, store Store) *ProcessService {
	f.t.Helper()
	ranking := domain.NewModelRanking([]domain.Model{{ID: "ecmwf", OptimumOrder: 0}, {ID: "gdas1", OptimumOrder: 1}})
	selector, err := source.NewSelector(dir, store, source.DefaultStrategies(acceptAll{}, ranking))
	require.NoError(f.t, err)
	identity := NewIdentityAssigner(fakeAttributes{}, f.issuer)
	return NewProcessService(dir, store, selector, f.converter, identity, f.metrics, &ProcessConfig{TempDir: f.t.TempDir()})
}

// addRaw records an uploaded raw file and stores its object.
func (f *fixture) addRaw(id, instrument, model, filename string) domain.RawRecord {
	f.t.Helper()
	rec := domain.RawRecord{
		ID:              id,
		Site:            testSite.ID,
		MeasurementDate: testDate.Format(domain.DateLayout),
		Instrument:      instrument,
		Model:           model,
		Filename:        filename,
		Checksum:        "sha-" + id,
		Status:          domain.RawStatusUploaded,
		S3Key:           domain.RawKey(testSite.ID, id, filename),
	}
	require.NoError(f.t, f.directory.Raw().Create(context.Background(), &rec))
	f.raw.Put(rec.S3Key, []byte("raw "+id))
	return rec
}

// addLevel1 uploads one raw file for every level-1 kind.
func (f *fixture) addLevel1() {
	f.addRaw("mira-1", source.InstrumentMira, "", "20201022_0000.mmclx")
	f.addRaw("cl51-1", source.InstrumentCL51, "", "A2102200.DAT")
	f.addRaw("hatpro-1", source.InstrumentHatpro, "", "201022.LWP.NC")
	f.addRaw("ecmwf-1", "", "ecmwf", "20201022_bucharest_ecmwf.nc")
}

func (f *fixture) rawStatus(id string) domain.RawStatus {
	f.t.Helper()
	rec, err := f.directory.Raw().GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return rec.Status
}

func (f *fixture) products(kind domain.ProductKind, includeSuperseded bool) []domain.ProductRecord {
	f.t.Helper()
	recs, err := f.directory.Products().Query(context.Background(), domain.ProductFilter{
		Site:              testSite.ID,
		MeasurementDate:   testDate.Format(domain.DateLayout),
		Product:           kind,
		IncludeSuperseded: includeSuperseded,
	})
	require.NoError(f.t, err)
	return recs
}

// run processes testDate for the given kinds and returns the reports.
func (f *fixture) run(svc *ProcessService, opts ProcessOptions, kinds ...domain.ProductKind) []Report {
	f.t.Helper()
	var reports []Report
	_, err := svc.Run(context.Background(), testSite, testDay, kinds, opts, func(r Report) {
		reports = append(reports, r)
	})
	require.NoError(f.t, err)
	require.Len(f.t, reports, len(kinds))
	return reports
}
