package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the ingestion service.
// Use these keys consistently so logs can be aggregated and queried.
const (
	// Distributed Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Request Identification
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyRemoteIP  = "remote_addr"
	KeyStatus    = "status"

	// Upload Lifecycle
	KeyUploadID      = "upload_id"
	KeyOwnerID       = "owner_id"
	KeyChunkIndex    = "chunk_index"
	KeyTotalChunks   = "total_chunks"
	KeyUploadStatus  = "upload_status"
	KeyIdempotentKey = "idempotency_key"

	// I/O & Storage
	KeySize       = "size"
	KeyOffset     = "offset"
	KeyBucket     = "bucket"
	KeyKey        = "key"
	KeyRegion     = "region"
	KeyStoreType  = "store_type"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"

	// Queue & Worker Pool
	KeyQueueBackend = "queue_backend"
	KeyTaskID       = "task_id"
	KeyQueued       = "queued"
	KeyInflight     = "inflight"
	KeyWorkers      = "workers"

	// Operation Metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyOperation  = "operation"
)

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// RequestID returns a slog.Attr for the HTTP request ID.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// UploadID returns a slog.Attr for the upload identifier.
func UploadID(id string) slog.Attr { return slog.String(KeyUploadID, id) }

// OwnerID returns a slog.Attr for the owning principal's user id.
func OwnerID(id string) slog.Attr { return slog.String(KeyOwnerID, id) }

// ChunkIndex returns a slog.Attr for a chunk's index.
func ChunkIndex(idx int) slog.Attr { return slog.Int(KeyChunkIndex, idx) }

// TotalChunks returns a slog.Attr for the total chunk count of an upload.
func TotalChunks(n int) slog.Attr { return slog.Int(KeyTotalChunks, n) }

// UploadStatus returns a slog.Attr for an upload's lifecycle status.
func UploadStatus(s string) slog.Attr { return slog.String(KeyUploadStatus, s) }

// IdempotencyKey returns a slog.Attr for a client idempotency key.
func IdempotencyKey(k string) slog.Attr { return slog.String(KeyIdempotentKey, k) }

// Size returns a slog.Attr for a byte size.
func Size(s int64) slog.Attr { return slog.Int64(KeySize, s) }

// Offset returns a slog.Attr for a byte offset.
func Offset(off int64) slog.Attr { return slog.Int64(KeyOffset, off) }

// Bucket returns a slog.Attr for a cloud bucket name.
func Bucket(name string) slog.Attr { return slog.String(KeyBucket, name) }

// Key returns a slog.Attr for an object storage key.
func Key(k string) slog.Attr { return slog.String(KeyKey, k) }

// Region returns a slog.Attr for a cloud region.
func Region(r string) slog.Attr { return slog.String(KeyRegion, r) }

// StoreType returns a slog.Attr for a store backend type.
func StoreType(t string) slog.Attr { return slog.String(KeyStoreType, t) }

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// MaxRetries returns a slog.Attr for the configured maximum retry count.
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// QueueBackend returns a slog.Attr for the configured queue backend.
func QueueBackend(name string) slog.Attr { return slog.String(KeyQueueBackend, name) }

// TaskID returns a slog.Attr for a durable queue task id.
func TaskID(id string) slog.Attr { return slog.String(KeyTaskID, id) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error value. A nil error yields an empty
// Attr, which handlers omit.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a stable error code token.
func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }

// Operation returns a slog.Attr for a named sub-operation.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
