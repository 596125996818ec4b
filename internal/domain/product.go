package domain

import (
	"fmt"
	"time"
)

// Version is the lifecycle state of a published product.
type Version string

const (
	// VersionVolatile products may be overwritten by a later run.
	VersionVolatile Version = "volatile"
	// VersionFrozen products carry a permanent identifier and never change.
	VersionFrozen Version = "frozen"
)

// ProductRecord is one published product file.
//
// At most one record per (site, date, product) is Current. A frozen record
// superseded by reprocessing keeps its row with Current unset so it stays
// addressable by UUID and storage version tag.
type ProductRecord struct {
	UUID            string      `gorm:"type:text;primaryKey" json:"uuid"`
	Site            string      `gorm:"type:text;not null;index:idx_product_unit" json:"site"`
	MeasurementDate string      `gorm:"type:text;not null;index:idx_product_unit" json:"measurementDate"`
	Product         ProductKind `gorm:"type:text;not null;index:idx_product_unit" json:"product"`
	Instrument      string      `gorm:"type:text" json:"instrument,omitempty"`
	Model           string      `gorm:"type:text" json:"model,omitempty"`
	Filename        string      `gorm:"type:text;not null" json:"filename"`
	Version         Version     `gorm:"type:text;not null;default:volatile" json:"version"`
	PID             string      `gorm:"column:pid;type:text" json:"pid,omitempty"`
	Checksum        string      `gorm:"type:text" json:"checksum"`
	Size            int64       `json:"size"`
	VersionTag      string      `gorm:"type:text" json:"versionTag,omitempty"`
	Format          string      `gorm:"type:text" json:"format,omitempty"`
	SourceRawIDs    StringArray `gorm:"type:text" json:"sourceRawIds"`
	SourceFileUUIDs StringArray `gorm:"type:text" json:"sourceFileIds"`
	Current         bool        `gorm:"column:is_current;index:idx_product_current" json:"current"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// TableName returns the database table name for ProductRecord.
func (ProductRecord) TableName() string {
	return "product_files"
}

// Frozen reports whether the product has a permanent identifier.
func (p ProductRecord) Frozen() bool {
	return p.Version == VersionFrozen || p.PID != ""
}

// ProductFilter selects product records. Zero-valued fields do not filter.
type ProductFilter struct {
	Site            string
	MeasurementDate string
	Product         ProductKind
	// IncludeSuperseded also returns records that are no longer current.
	IncludeSuperseded bool
}

// ProductKey returns the object key of a product file, e.g.
// 20201022_bucharest_rpg-fmcw-94.nc.
func ProductKey(date time.Time, site, identifier string) string {
	return fmt.Sprintf("%s_%s_%s.nc", date.Format("20060102"), site, identifier)
}
