package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldChunkID   = "chunk_id"
	FieldChunkType = "chunk_type"
	FieldComponent = "component"
	FieldDataFile  = "data_file"
)

// Metric fields, used for aggregation and alerting.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldItems      = "items"
	FieldChunks     = "chunks"
	FieldStatus     = "status"
	FieldSize       = "size"
)
