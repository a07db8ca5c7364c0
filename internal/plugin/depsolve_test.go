package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrder struct {
	name      string
	runBefore []string
	runAfter  []string
	conflicts []string
}

func (f fakeOrder) Name() string        { return f.name }
func (f fakeOrder) RunBefore() []string { return f.runBefore }
func (f fakeOrder) RunAfter() []string  { return f.runAfter }
func (f fakeOrder) Conflicts() []string { return f.conflicts }

func TestSortRespectsRunBeforeAfter(t *testing.T) {
	plugins := []orderable{
		fakeOrder{name: "b", runAfter: []string{"a"}},
		fakeOrder{name: "a"},
		fakeOrder{name: "c", runAfter: []string{"b"}},
	}

	order, err := Sort(plugins)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSortTiesBrokenByName(t *testing.T) {
	plugins := []orderable{
		fakeOrder{name: "zeta"},
		fakeOrder{name: "alpha"},
		fakeOrder{name: "beta"},
	}

	order, err := Sort(plugins)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, order)
}

func TestSortDetectsCycle(t *testing.T) {
	plugins := []orderable{
		fakeOrder{name: "a", runAfter: []string{"b"}},
		fakeOrder{name: "b", runAfter: []string{"a"}},
	}

	_, err := Sort(plugins)
	require.Error(t, err)
}

func TestSortRejectsConflict(t *testing.T) {
	plugins := []orderable{
		fakeOrder{name: "a", conflicts: []string{"b"}},
		fakeOrder{name: "b"},
	}

	_, err := Sort(plugins)
	require.Error(t, err)
}

func TestSortIgnoresEdgesToUnknownPlugins(t *testing.T) {
	plugins := []orderable{
		fakeOrder{name: "a", runBefore: []string{"nonexistent"}},
	}

	order, err := Sort(plugins)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, order)
}
