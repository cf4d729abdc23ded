// Package record defines the LogRecord value type shared between the
// directory collector, the log store, the ingestion loop, and the
// metadata enricher.
package record

// Metadata is a mapping from label name to label value. Both key and
// value are expected to be non-empty UTF-8 strings. Key order carries no
// meaning: two Metadata values with the same entries are equivalent
// regardless of insertion order.
type Metadata map[string]string

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// LogRecord is a single tailed log line paired with the metadata that
// identifies where it came from.
type LogRecord struct {
	// Line is the UTF-8 log line with any trailing newline already
	// stripped.
	Line string
	// Metadata labels this line, e.g. {"path": "/var/log/pods/.../0.log"}.
	Metadata Metadata
}
