package applog

import (
	"io"
	"regexp"
	"strings"
)

// RedactedValue replaces sensitive content before it reaches any sink.
const RedactedValue = "[REDACTED]"

// sensitivePatterns catch secrets that can leak through a step's
// declared fields when an adapter shells out to a credentialed CLI or
// API client (the fingerprint canonicalizer logs field values verbatim
// in debug dumps; this keeps them out of the furu event log).
var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // reused across calls
	regexp.MustCompile(`sk-ant-api[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?([a-zA-Z0-9_-]{16,})["']?`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)(secret|password|credential|passwd|pwd)\s*[:=]\s*["']?[^\s"']{8,}["']?`),
	regexp.MustCompile(`(?i)-----BEGIN[A-Z\s]+PRIVATE KEY-----`),
}

var sensitiveFieldNames = map[string]struct{}{ //nolint:gochecknoglobals // reused across calls
	"api_key": {}, "apikey": {}, "api-key": {},
	"auth_token": {}, "authtoken": {}, "auth-token": {},
	"password": {}, "passwd": {}, "secret": {}, "credential": {}, "credentials": {},
	"private_key": {}, "privatekey": {}, "private-key": {},
	"access_token": {}, "accesstoken": {}, "access-token": {},
	"token": {}, "bearer": {}, "authorization": {},
}

// FilterValue redacts any sensitive substring found inside value.
func FilterValue(value string) string {
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveFieldName reports whether fieldName is a known-sensitive key,
// so its value should be redacted wholesale rather than pattern-scanned.
func IsSensitiveFieldName(fieldName string) bool {
	_, ok := sensitiveFieldNames[strings.ToLower(fieldName)]
	return ok
}

// RedactField returns RedactedValue for a sensitive field name, otherwise
// the pattern-filtered value.
func RedactField(fieldName, value string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedValue
	}
	return FilterValue(value)
}

// FilteringWriter wraps an io.Writer and redacts sensitive substrings from
// every write before it reaches the underlying sink (the rotated
// `.state/log` file in particular: step configs can carry credentials for
// adapters that shell out).
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It returns len(p) on success regardless of the
// filtered length, since callers should never see a short write for data
// they did in fact hand off.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	filtered := FilterValue(string(p))
	if _, err := fw.w.Write([]byte(filtered)); err != nil {
		return 0, err
	}
	return len(p), nil
}
