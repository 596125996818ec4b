package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/cloudnet/internal/domain"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConverterClient_Convert(t *testing.T) {
	var gotRoles []string
	var gotFiles []string
	var gotSite domain.Site
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert/radar", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotRoles = r.MultipartForm.Value["roles"]
		for _, fh := range r.MultipartForm.File["files"] {
			gotFiles = append(gotFiles, fh.Filename)
		}
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("site")), &gotSite))
		assert.Equal(t, "2020-10-22", r.FormValue("date"))
		assert.Equal(t, "mira", r.FormValue("instrument"))
		assert.Equal(t, "u-1", r.FormValue("uuid"))

		w.Header().Set(headerFileUUID, "u-1")
		w.Header().Set(headerFileFormat, "NetCDF4")
		w.Header().Set(headerSourceFileUUIDs, "s-1, s-2")
		io.WriteString(w, "netcdf bytes")
	}))
	defer srv.Close()

	c := NewConverterClient(&ConverterConfig{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: 5 * time.Second})
	out := filepath.Join(t.TempDir(), "out", "product.nc")
	res, err := c.Convert(context.Background(), ConvertRequest{
		Kind:       domain.KindRadar,
		Site:       testSite,
		Date:       "2020-10-22",
		Instrument: "mira",
		UUID:       "u-1",
		Inputs: []ConvertInput{
			{Role: "raw", Path: writeTemp(t, "a.mmclx", "a")},
			{Role: "raw", Path: writeTemp(t, "b.mmclx", "b")},
		},
		OutputPath: out,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"raw", "raw"}, gotRoles)
	assert.ElementsMatch(t, []string{"a.mmclx", "b.mmclx"}, gotFiles)
	assert.Equal(t, testSite, gotSite)
	assert.Equal(t, "u-1", res.UUID)
	assert.Equal(t, "NetCDF4", res.Format)
	assert.Equal(t, []string{"s-1", "s-2"}, res.SourceFileUUIDs)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "netcdf bytes", string(data))
}

func TestConverterClient_ConvertErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header string
		check  func(error) bool
	}{
		{"insufficient input", http.StatusUnprocessableEntity, "", domain.ErrInputInsufficient.Has},
		{"server error", http.StatusInternalServerError, "", domain.ErrConversion.Has},
		{"missing uuid header", http.StatusOK, "", domain.ErrConversion.Has},
		{"foreign uuid", http.StatusOK, "other", domain.ErrConversion.Has},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set(headerFileUUID, tt.header)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, "only 12 valid profiles")
			}))
			defer srv.Close()

			c := NewConverterClient(&ConverterConfig{BaseURL: srv.URL})
			_, err := c.Convert(context.Background(), ConvertRequest{
				Kind:       domain.KindLidar,
				Site:       testSite,
				Date:       "2020-10-22",
				UUID:       "u-1",
				Inputs:     []ConvertInput{{Role: "raw", Path: writeTemp(t, "x.nc", "x")}},
				OutputPath: filepath.Join(t.TempDir(), "out.nc"),
			})
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestConverterClient_ValidateAndAttributes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/validate/chm15k", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "2020-10-22", r.FormValue("date"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"valid":false,"reason":"wrong date"}`)
	})
	mux.HandleFunc("/attributes/read", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"uuid":"u-1","pid":"","format":"NetCDF4"}`)
	})
	mux.HandleFunc("/attributes/write", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		io.WriteString(w, string(body)+"pid="+r.FormValue("pid"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewConverterClient(&ConverterConfig{BaseURL: srv.URL})
	ctx := context.Background()
	path := writeTemp(t, "p.nc", "data;")

	ok, reason, err := c.ValidateRaw(ctx, "chm15k", "2020-10-22", path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "wrong date", reason)

	attrs, err := c.ReadAttributes(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "u-1", attrs.UUID)
	assert.Empty(t, attrs.PID)

	require.NoError(t, c.WriteAttributes(ctx, path, "hdl:1"))
	data, _ := os.ReadFile(path)
	assert.Equal(t, "data;pid=hdl:1", string(data))
}

func TestPIDClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pid", r.URL.Path)
		var req pidRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "file", req.Type)
		w.Header().Set("Content-Type", "application/json")
		if req.UUID == "bad" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"pid":"https://hdl.handle.net/21.12132/3.`+req.UUID+`"}`)
	}))
	defer srv.Close()

	c := NewPIDClient(&PIDConfig{BaseURL: srv.URL})
	pid, err := c.IssuePID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "https://hdl.handle.net/21.12132/3.u-1", pid)

	_, err = c.IssuePID(context.Background(), "bad")
	assert.Error(t, err)
}

func TestIdentityAssigner(t *testing.T) {
	issuer := &fakeIssuer{}
	a := NewIdentityAssigner(fakeAttributes{}, issuer)
	path := writeTemp(t, "p.nc", "uuid=0b3a9a6e-aaaa\n")

	pid, err := a.Assign(context.Background(), path, "")
	require.NoError(t, err)
	assert.Contains(t, pid, "0b3a9a6e")

	_, err = a.Assign(context.Background(), path, "")
	assert.True(t, domain.ErrAlreadyFrozen.Has(err))
	assert.Equal(t, 1, issuer.n, "no second identifier is issued")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "uuid=0b3a9a6e-aaaa\npid="+pid+"\n", string(data))
}

type stubProducts []domain.ProductRecord

func (s stubProducts) QueryProducts(context.Context, domain.ProductFilter) ([]domain.ProductRecord, error) {
	return s, nil
}

func TestStatusResolver(t *testing.T) {
	volatile := domain.ProductRecord{UUID: "v", Version: domain.VersionVolatile}
	frozen := domain.ProductRecord{UUID: "f", Version: domain.VersionFrozen, PID: "hdl:1"}
	unit := domain.ProcessingUnit{Site: testSite, Date: testDate, Product: domain.KindRadar}

	tests := []struct {
		name      string
		records   stubProducts
		reprocess bool
		want      State
		wantUUID  string
	}{
		{"absent", nil, false, StateAbsent, ""},
		{"volatile", stubProducts{volatile}, false, StateVolatile, "v"},
		{"volatile reprocess", stubProducts{volatile}, true, StateVolatile, "v"},
		{"frozen blocked", stubProducts{frozen}, false, StateFrozenBlocked, "f"},
		{"frozen reprocess", stubProducts{frozen}, true, StateFrozenReprocess, "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewStatusResolver(tt.records).Resolve(context.Background(), unit, tt.reprocess)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
			assert.Equal(t, tt.wantUUID, st.ExistingUUID())
		})
	}

	_, err := NewStatusResolver(stubProducts{volatile, frozen}).Resolve(context.Background(), unit, false)
	assert.True(t, domain.ErrIntegrity.Has(err))
}
