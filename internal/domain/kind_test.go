package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllKinds_LevelOrder(t *testing.T) {
	kinds := AllKinds()
	require.Len(t, kinds, 9)

	last := Level1
	for _, k := range kinds {
		def, ok := LookupKind(k)
		require.True(t, ok)
		assert.GreaterOrEqual(t, def.Level, last, "kind %s out of level order", k)
		last = def.Level
	}
}

func TestKindRequirementsPrecedeDependents(t *testing.T) {
	pos := make(map[ProductKind]int)
	for i, k := range AllKinds() {
		pos[k] = i
	}
	for _, k := range AllKinds() {
		spec, _ := LookupKind(k)
		for _, req := range spec.Requires {
			assert.Less(t, pos[req], pos[k], "%s must come before %s", req, k)
		}
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []ProductKind
		wantErr bool
	}{
		{name: "default", in: "", want: AllKinds()},
		{name: "caller order kept", in: "iwc,radar", want: []ProductKind{KindIWC, KindRadar}},
		{name: "spaces and duplicates", in: " lidar, lidar ,mwr", want: []ProductKind{KindLidar, KindMWR}},
		{name: "unknown", in: "radar,sonar", wantErr: true},
		{name: "only commas", in: ",,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKinds(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRaw(t *testing.T) {
	assert.True(t, KindModel.IsRaw())
	assert.False(t, KindCategorize.IsRaw())
	assert.False(t, KindDrizzle.IsRaw())
	assert.False(t, ProductKind("sonar").IsRaw())
}
