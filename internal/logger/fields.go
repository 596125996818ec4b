package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields. These are carried on the context logger through one
// processing unit or one HTTP request.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldSite      = "site"
	FieldDate      = "date"
	FieldProduct   = "product"
	FieldUUID      = "uuid"
)

// Metric fields, attached per entry and used for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
