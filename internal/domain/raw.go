package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"path"
	"time"
)

// RawStatus represents the processing status of a raw upload.
// Values include RawStatusUploaded and RawStatusProcessed.
type RawStatus string

const (
	RawStatusUploaded  RawStatus = "uploaded"
	RawStatusProcessed RawStatus = "processed"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// RawRecord is one raw instrument or model file uploaded for a site and date.
type RawRecord struct {
	ID              string    `gorm:"type:text;primaryKey" json:"id"`
	Site            string    `gorm:"type:text;not null;index:idx_raw_site_date" json:"site"`
	MeasurementDate string    `gorm:"type:text;not null;index:idx_raw_site_date" json:"measurementDate"`
	Instrument      string    `gorm:"type:text;index:idx_raw_instrument" json:"instrument,omitempty"`
	Model           string    `gorm:"type:text" json:"model,omitempty"`
	Filename        string    `gorm:"type:text;not null" json:"filename"`
	Checksum        string    `gorm:"type:text;uniqueIndex:idx_raw_checksum" json:"checksum"`
	Size            int64     `json:"size"`
	Status          RawStatus `gorm:"type:text;index:idx_raw_status;default:uploaded" json:"status"`
	Format          string    `gorm:"type:text" json:"format,omitempty"`
	S3Key           string    `gorm:"type:text" json:"s3key"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName returns the database table name for RawRecord.
func (RawRecord) TableName() string {
	return "raw_files"
}

// RawKey returns the object key of a raw upload: site/id/filename.
func RawKey(site, id, filename string) string {
	return path.Join(site, id, filename)
}

// RawFilter selects raw records. Zero-valued fields do not filter.
type RawFilter struct {
	Site            string
	MeasurementDate string
	Instrument      string
	// HasModel restricts the result to model uploads.
	HasModel        bool
	OnlyUnprocessed bool
}
