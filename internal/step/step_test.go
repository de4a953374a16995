package step_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrz1836/furu/internal/step"
)

type fakeStep struct {
	ns     string
	fields []step.Field
}

func (f fakeStep) Namespace() string              { return f.ns }
func (f fakeStep) Fields() []step.Field           { return f.fields }
func (f fakeStep) VersionControlled() bool        { return false }
func (f fakeStep) ForceRecompute() bool           { return false }
func (f fakeStep) Create(dir string) (any, error) { return "result", nil }
func (f fakeStep) Load(dir string) (any, error)   { return "loaded", nil }

func TestIsMissing(t *testing.T) {
	t.Parallel()

	assert.True(t, step.IsMissing(step.Missing))
	assert.False(t, step.IsMissing(nil))
	assert.False(t, step.IsMissing(0))
	assert.False(t, step.IsMissing(""))
}

func TestMissing_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "furu.Missing", step.Missing.String())
}

func TestStep_FieldsPreserveDeclarationOrder(t *testing.T) {
	t.Parallel()

	s := fakeStep{ns: "pipeline.Train", fields: []step.Field{
		{Name: "b", Value: 1},
		{Name: "a", Value: 2},
	}}

	got := s.Fields()
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
}

func TestStep_CreateAndLoad(t *testing.T) {
	t.Parallel()

	s := fakeStep{ns: "pipeline.Train"}

	created, err := s.Create("/tmp/x")
	assert.NoError(t, err)
	assert.Equal(t, "result", created)

	loaded, err := s.Load("/tmp/x")
	assert.NoError(t, err)
	assert.Equal(t, "loaded", loaded)
}
