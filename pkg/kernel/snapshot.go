package kernel

import (
	"strings"
	"time"
)

// Snapshot is one captured side of an upstream exchange. Snapshots are
// emitted to a configurable sink for audit; the kernel itself persists
// nothing.
type Snapshot struct {
	// RequestID correlates the snapshot with the inbound request.
	RequestID string

	// ProviderKey identifies the provider entry.
	ProviderKey string

	// Phase is "request" or "response".
	Phase string

	// Method and URL describe the upstream call.
	Method string
	URL    string

	// StatusCode is set for response snapshots.
	StatusCode int

	// Headers is the redacted header set.
	Headers map[string]string

	// Body is the payload as sent or received.
	Body []byte

	// Timestamp is when the snapshot was captured.
	Timestamp time.Time
}

// SnapshotSink receives exchange snapshots. Implementations must not
// block: the kernel calls Record on the request path.
type SnapshotSink interface {
	Record(s Snapshot)
}

// redactHeaders copies headers with credential material masked. Keys are
// compared case-insensitively.
func redactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "authorization", "cookie", "x-goog-api-key", "x-api-key":
			out[k] = "[REDACTED]"
		default:
			out[k] = v
		}
	}
	return out
}
