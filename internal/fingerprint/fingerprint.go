// Package fingerprint derives the stable, deterministic fingerprint of a
// step's configuration. Determinism here is the root correctness property
// of the whole cache: every cache-hit decision and every inter-worker
// agreement over the filesystem hinges on Hash being a pure function of a
// step's declared fields.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/mrz1836/furu/internal/ferrors"
	"github.com/mrz1836/furu/internal/step"
)

// hashLen is the number of hex characters the digest is truncated to
// (spec.md §3: "first 16 hex chars").
const hashLen = 16

// Canonical returns s's canonical byte encoding: a recursively expanded
// tree where each Step becomes {"__type__": namespace, "fields": [...]},
// fields in declaration order, mapping keys sorted, sequences preserving
// order, and no whitespace. Two steps with byte-equal canonical forms are
// guaranteed to produce the same Hash and resolve to the same directory.
func Canonical(s step.Step) ([]byte, error) {
	var buf strings.Builder
	if err := writeStep(&buf, s, nil); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Hash returns the truncated SHA-256 hex digest of s's canonical form.
func Hash(s step.Step) (string, error) {
	canon, err := Canonical(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:hashLen], nil
}

// DirOf returns the step directory path for s under root:
// root/<namespace-as-path>/<hash>.
func DirOf(root string, s step.Step) (string, error) {
	hash, err := Hash(s)
	if err != nil {
		return "", err
	}
	parts := strings.Split(s.Namespace(), ".")
	segments := append([]string{root}, parts...)
	segments = append(segments, hash)
	return filepath.Join(segments...), nil
}

func writeStep(buf *strings.Builder, s step.Step, ancestors []step.Step) error {
	if s == nil {
		return fmt.Errorf("%w: nil step", ferrors.ErrInvalidConfig)
	}
	if containsStep(ancestors, s) {
		return fmt.Errorf("%w: cycle detected at %s", ferrors.ErrInvalidConfig, s.Namespace())
	}
	// append-only: this local extension is never written back to the
	// caller's slice, so sibling fields each see ancestors as of s alone,
	// not as of any sibling's own descendants.
	ancestors = append(ancestors, s)

	buf.WriteString(`{"__type__":`)
	if err := writeString(buf, s.Namespace()); err != nil {
		return err
	}
	buf.WriteString(`,"fields":[`)
	for i, f := range s.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		if err := writeString(buf, f.Name); err != nil {
			return err
		}
		buf.WriteByte(',')
		if err := writeValue(buf, f.Value, ancestors); err != nil {
			return err
		}
		buf.WriteByte(']')
	}
	buf.WriteString(`]}`)
	return nil
}

func writeValue(buf *strings.Builder, v step.Value, ancestors []step.Step) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		return writeString(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case float64:
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		return nil
	case []step.Value:
		return writeSequence(buf, val, ancestors)
	case map[string]step.Value:
		return writeMapping(buf, val, ancestors)
	case step.Step:
		return writeStep(buf, val, ancestors)
	default:
		if step.IsMissing(v) {
			buf.WriteString(`{"__missing__":true}`)
			return nil
		}
		return fmt.Errorf("%w: unsupported value kind %T", ferrors.ErrInvalidConfig, v)
	}
}

func writeSequence(buf *strings.Builder, seq []step.Value, ancestors []step.Step) error {
	buf.WriteByte('[')
	for i, elem := range seq {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, elem, ancestors); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeMapping(buf *strings.Builder, m map[string]step.Value, ancestors []step.Step) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, m[k], ancestors); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString writes a canonical JSON string token. encoding/json's string
// encoding is itself deterministic (fixed escape table, no added
// whitespace), so it is reused here rather than hand-rolled.
func writeString(buf *strings.Builder, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrInvalidConfig, err)
	}
	buf.Write(data)
	return nil
}

// containsStep reports whether s already appears in ancestors. Steps are
// user-defined value or pointer types; many store a slice directly (their
// Fields() cache), which makes them non-comparable with ==. stepsEqual
// treats any such step as never equal to another, which is sound: a cycle
// can only be constructed through shared pointer identity in the first
// place, and pointers are always comparable.
func containsStep(ancestors []step.Step, s step.Step) bool {
	for _, a := range ancestors {
		if stepsEqual(a, s) {
			return true
		}
	}
	return false
}

func stepsEqual(a, b step.Step) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Type() != bv.Type() || !av.Comparable() {
		return false
	}
	return a == b
}
