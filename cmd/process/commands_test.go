package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/service"
)

func TestRunFlags_Parse(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2020, 10, 30, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	tests := []struct {
		name      string
		flags     runFlags
		wantStart string
		wantStop  string
		wantKinds int
		wantErr   bool
	}{
		{"defaults", runFlags{}, "2020-10-23", "2020-10-29", len(domain.AllKinds()), false},
		{"explicit", runFlags{start: "2020-10-22", stop: "2020-10-23", products: "radar,categorize"}, "2020-10-22", "2020-10-23", 2, false},
		{"start not before stop", runFlags{start: "2020-10-22", stop: "2020-10-22"}, "", "", 0, true},
		{"malformed date", runFlags{start: "22/10/2020"}, "", "", 0, true},
		{"unknown product", runFlags{products: "radar,sonar"}, "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates, kinds, err := tt.flags.parse()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, dates.Start.Format(domain.DateLayout))
			assert.Equal(t, tt.wantStop, dates.Stop.Format(domain.DateLayout))
			assert.Len(t, kinds, tt.wantKinds)
		})
	}
}

func TestRunSites(t *testing.T) {
	sites := []domain.Site{{ID: "bucharest"}, {ID: "mace-head"}}
	date := time.Date(2020, 10, 22, 0, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	err := runSites(context.Background(), &out, sites, 2,
		func(_ context.Context, site domain.Site, report func(service.Report)) (*service.RunStats, error) {
			report(service.Report{
				Unit:    domain.ProcessingUnit{Site: site, Date: date, Product: domain.KindRadar},
				Outcome: service.OutcomeFailed,
				Reason:  "conversion fault",
			})
			if site.ID == "mace-head" {
				return &service.RunStats{Units: 1}, domain.ErrDirectory.New("connection refused")
			}
			return &service.RunStats{Units: 1}, nil
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mace-head")
	assert.NotContains(t, err.Error(), "bucharest", "failed units do not fail the run")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "2020-10-22 radar: Failed")
	}
}
