package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/furu/internal/fingerprint"
	"github.com/mrz1836/furu/internal/step"
)

type fakeStep struct {
	namespace string
	fields    []step.Field
	versioned bool
	force     bool
}

func (f fakeStep) Namespace() string              { return f.namespace }
func (f fakeStep) Fields() []step.Field           { return f.fields }
func (f fakeStep) VersionControlled() bool        { return f.versioned }
func (f fakeStep) ForceRecompute() bool           { return f.force }
func (f fakeStep) Create(dir string) (any, error) { return nil, nil }
func (f fakeStep) Load(dir string) (any, error)   { return nil, nil }

func TestHash_DeterministicForIdenticalFields(t *testing.T) {
	t.Parallel()

	a := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "lr", Value: 0.01},
		{Name: "epochs", Value: 10},
	}}
	b := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "lr", Value: 0.01},
		{Name: "epochs", Value: 10},
	}}

	ha, err := fingerprint.Hash(a)
	require.NoError(t, err)
	hb, err := fingerprint.Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 16)
}

func TestHash_DiffersWhenFieldOrderDiffers(t *testing.T) {
	t.Parallel()

	a := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "lr", Value: 0.01},
		{Name: "epochs", Value: 10},
	}}
	// Declaration order is part of the canonical form: swapping it is a
	// different step shape even though the field set is identical.
	b := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "epochs", Value: 10},
		{Name: "lr", Value: 0.01},
	}}

	ha, err := fingerprint.Hash(a)
	require.NoError(t, err)
	hb, err := fingerprint.Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestHash_MappingKeyOrderIsIrrelevant(t *testing.T) {
	t.Parallel()

	a := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "opts", Value: map[string]step.Value{"b": 2, "a": 1}},
	}}
	b := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "opts", Value: map[string]step.Value{"a": 1, "b": 2}},
	}}

	ha, err := fingerprint.Hash(a)
	require.NoError(t, err)
	hb, err := fingerprint.Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHash_NestedStepDependency(t *testing.T) {
	t.Parallel()

	dep := fakeStep{namespace: "pipeline.Prep", fields: []step.Field{
		{Name: "seed", Value: 7},
	}}
	parent := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "prep", Value: dep},
	}}

	h, err := fingerprint.Hash(parent)
	require.NoError(t, err)
	assert.Len(t, h, 16)
}

func TestCanonical_MissingSentinel(t *testing.T) {
	t.Parallel()

	s := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "tag", Value: step.Missing},
	}}

	canon, err := fingerprint.Canonical(s)
	require.NoError(t, err)
	assert.Contains(t, string(canon), `"__missing__":true`)
}

func TestCanonical_DetectsCycle(t *testing.T) {
	t.Parallel()

	cyclic := &cyclicStep{namespace: "pipeline.Self"}
	cyclic.fields = []step.Field{{Name: "self", Value: cyclic}}

	_, err := fingerprint.Canonical(cyclic)
	require.Error(t, err)
}

type cyclicStep struct {
	namespace string
	fields    []step.Field
}

func (s *cyclicStep) Namespace() string              { return s.namespace }
func (s *cyclicStep) Fields() []step.Field           { return s.fields }
func (s *cyclicStep) VersionControlled() bool        { return false }
func (s *cyclicStep) ForceRecompute() bool           { return false }
func (s *cyclicStep) Create(dir string) (any, error) { return nil, nil }
func (s *cyclicStep) Load(dir string) (any, error)   { return nil, nil }

func TestDirOf_NamespaceMapsToNestedPath(t *testing.T) {
	t.Parallel()

	s := fakeStep{namespace: "pipeline.train.Step", fields: nil}
	dir, err := fingerprint.DirOf("/cache", s)
	require.NoError(t, err)
	assert.Contains(t, dir, "pipeline")
	assert.Contains(t, dir, "train")
	assert.Contains(t, dir, "Step")
}

func TestHash_RejectsUnsupportedValueKind(t *testing.T) {
	t.Parallel()

	s := fakeStep{namespace: "pipeline.Train", fields: []step.Field{
		{Name: "bad", Value: struct{ X int }{X: 1}},
	}}
	_, err := fingerprint.Hash(s)
	assert.Error(t, err)
}
