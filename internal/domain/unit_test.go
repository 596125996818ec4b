package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateRange_Defaults(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2020, 10, 30, 15, 4, 5, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	r, err := NewDateRange("", "")
	require.NoError(t, err)
	assert.Equal(t, "2020-10-23", r.Start.Format(DateLayout))
	assert.Equal(t, "2020-10-29", r.Stop.Format(DateLayout))
	assert.Len(t, r.Dates(), 6)
}

func TestNewDateRange(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		stop      string
		wantDates []string
		wantErr   bool
	}{
		{
			name:      "single day",
			start:     "2020-10-22",
			stop:      "2020-10-23",
			wantDates: []string{"2020-10-22"},
		},
		{
			name:      "month boundary",
			start:     "2020-10-30",
			stop:      "2020-11-02",
			wantDates: []string{"2020-10-30", "2020-10-31", "2020-11-01"},
		},
		{name: "empty range", start: "2020-10-22", stop: "2020-10-22", wantErr: true},
		{name: "reversed", start: "2020-10-23", stop: "2020-10-22", wantErr: true},
		{name: "bad format", start: "22.10.2020", stop: "2020-10-23", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDateRange(tt.start, tt.stop)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, d := range r.Dates() {
				got = append(got, d.Format(DateLayout))
			}
			assert.Equal(t, tt.wantDates, got)
		})
	}
}

func TestProductKey(t *testing.T) {
	date := time.Date(2020, 10, 22, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "20201022_bucharest_rpg-fmcw-94.nc", ProductKey(date, "bucharest", "rpg-fmcw-94"))
}

func TestRawKey(t *testing.T) {
	assert.Equal(t, "bucharest/abc/file.LV1", RawKey("bucharest", "abc", "file.LV1"))
}

func TestModelRanking(t *testing.T) {
	r := NewModelRanking([]Model{{ID: "ecmwf", OptimumOrder: 0}, {ID: "gdas1", OptimumOrder: 2}})
	o, ok := r.Rank("gdas1")
	assert.True(t, ok)
	assert.Equal(t, 2, o)
	_, ok = r.Rank("icon")
	assert.False(t, ok)
}
