package domain

import (
	"fmt"
	"strings"
)

// ProductKind names one product type in the archive.
type ProductKind string

const (
	KindRadar          ProductKind = "radar"
	KindLidar          ProductKind = "lidar"
	KindMWR            ProductKind = "mwr"
	KindModel          ProductKind = "model"
	KindCategorize     ProductKind = "categorize"
	KindClassification ProductKind = "classification"
	KindIWC            ProductKind = "iwc"
	KindLWC            ProductKind = "lwc"
	KindDrizzle        ProductKind = "drizzle"
)

// Level is the processing level of a product kind.
type Level int

const (
	Level1 Level = iota + 1
	LevelCategorize
	Level2
)

func (l Level) String() string {
	switch l {
	case Level1:
		return "1"
	case LevelCategorize:
		return "categorize"
	case Level2:
		return "2"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// KindSpec describes how a product kind sits in the processing graph.
type KindSpec struct {
	Kind  ProductKind
	Level Level
	// Identifier is the name used in product object keys for derived kinds.
	// Level-1 kinds use the winning instrument or model id instead.
	Identifier string
	// Requires lists the product kinds that must already be published for
	// the same site and date.
	Requires []ProductKind
}

var level1Kinds = []ProductKind{KindRadar, KindLidar, KindMWR, KindModel}

// kindTable is ordered: level 1, categorize, level 2.
var kindTable = []KindSpec{
	{Kind: KindRadar, Level: Level1},
	{Kind: KindLidar, Level: Level1},
	{Kind: KindMWR, Level: Level1},
	{Kind: KindModel, Level: Level1},
	{Kind: KindCategorize, Level: LevelCategorize, Identifier: "categorize", Requires: level1Kinds},
	{Kind: KindClassification, Level: Level2, Identifier: "classification", Requires: []ProductKind{KindCategorize}},
	{Kind: KindIWC, Level: Level2, Identifier: "iwc-Z-T-method", Requires: []ProductKind{KindCategorize}},
	{Kind: KindLWC, Level: Level2, Identifier: "lwc-scaled-adiabatic", Requires: []ProductKind{KindCategorize}},
	{Kind: KindDrizzle, Level: Level2, Identifier: "drizzle", Requires: []ProductKind{KindCategorize}},
}

// AllKinds returns every known product kind in level order.
func AllKinds() []ProductKind {
	kinds := make([]ProductKind, len(kindTable))
	for i, s := range kindTable {
		kinds[i] = s.Kind
	}
	return kinds
}

// Level1Kinds returns the kinds produced directly from raw instrument data.
func Level1Kinds() []ProductKind {
	return append([]ProductKind(nil), level1Kinds...)
}

// LookupKind returns the table entry for kind.
func LookupKind(kind ProductKind) (KindSpec, bool) {
	for _, s := range kindTable {
		if s.Kind == kind {
			return s, true
		}
	}
	return KindSpec{}, false
}

// ParseKinds parses a comma-separated product list. An empty list yields
// every kind in level order. The caller's order is kept otherwise.
func ParseKinds(list string) ([]ProductKind, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return AllKinds(), nil
	}
	var kinds []ProductKind
	seen := make(map[ProductKind]bool)
	for _, name := range strings.Split(list, ",") {
		kind := ProductKind(strings.TrimSpace(name))
		if kind == "" {
			continue
		}
		if _, ok := LookupKind(kind); !ok {
			return nil, fmt.Errorf("unknown product %q", kind)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no products in %q", list)
	}
	return kinds, nil
}

// IsRaw reports whether kind consumes raw uploads rather than other products.
func (k ProductKind) IsRaw() bool {
	s, ok := LookupKind(k)
	return ok && s.Level == Level1
}
