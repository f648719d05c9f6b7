package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jpenney/pdar/pkg/core"
	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	engine, err := hashing.New(hashing.SHA1)
	require.NoError(t, err)
	return &Planner{Hashing: engine, Delta: &delta.RsyncDeltaCodec{}}
}

func kindsByTarget(entries []*core.Entry) map[string]core.Kind {
	result := make(map[string]core.Kind, len(entries))
	for _, e := range entries {
		result[e.Target] = e.Kind
	}
	return result
}

func TestPlanDiff(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a": "x"})
	writeTree(t, dest, map[string]string{"a": "y"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.KindDiff, entries[0].Kind)
	require.Equal(t, "a", entries[0].Target)
}

func TestPlanNew(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a": "x"})
	writeTree(t, dest, map[string]string{"a": "x", "b": "z"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.KindNew, entries[0].Kind)
	require.Equal(t, "b", entries[0].Target)
}

func TestPlanDelete(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a": "x"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.KindDelete, entries[0].Kind)
	require.Equal(t, "a", entries[0].Target)
}

func TestPlanMove(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a": "x"})
	writeTree(t, dest, map[string]string{"b": "x"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.KindMove, entries[0].Kind)
	require.Equal(t, "b", entries[0].Target)
	require.Equal(t, "a", entries[0].TargetSource)
}

func TestPlanCopy(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a": "x"})
	writeTree(t, dest, map[string]string{"a": "x", "b": "x"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.KindCopy, entries[0].Kind)
	require.Equal(t, "b", entries[0].Target)
	require.Equal(t, "a", entries[0].TargetSource)
}

func TestPlanSwapIsTwoDiffs(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a": "x", "b": "y"})
	writeTree(t, dest, map[string]string{"a": "y", "b": "x"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)

	kinds := kindsByTarget(entries)
	require.Len(t, kinds, 2)
	for _, kind := range kinds {
		require.Equal(t, core.KindDiff, kind)
	}
}

func TestPlanEmissionOrder(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"deleted": "gone", "src": "x", "changed": "before"})
	writeTree(t, dest, map[string]string{"src": "x", "copied": "x", "changed": "after"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)

	var order []core.Kind
	for _, e := range entries {
		order = append(order, e.Kind)
	}
	require.Equal(t, []core.Kind{core.KindCopy, core.KindDiff, core.KindDelete}, order)
}

func TestPlanPatternFilter(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"a.txt": "x", "a.log": "x"})
	writeTree(t, dest, map[string]string{"a.txt": "y", "a.log": "y"})

	planner := newPlanner(t)
	planner.Patterns = []string{"*.txt"}

	entries, err := planner.Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.txt", entries[0].Target)
}

func TestPlanCaseFold(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"README.txt": "x"})
	writeTree(t, dest, map[string]string{"readme.txt": "y"})

	planner := newPlanner(t)
	planner.CaseFold = true

	entries, err := planner.Plan(origin, dest)
	require.NoError(t, err)
	require.Len(t, entries, 1, "case-only rename should be treated as the same path")
	require.Equal(t, core.KindDiff, entries[0].Kind)
	require.Equal(t, "readme.txt", entries[0].Target)
}

func TestPlanCaseFoldDisabledTreatsCaseAsDistinct(t *testing.T) {
	origin, dest := t.TempDir(), t.TempDir()
	writeTree(t, origin, map[string]string{"README.txt": "x"})
	writeTree(t, dest, map[string]string{"readme.txt": "x"})

	entries, err := newPlanner(t).Plan(origin, dest)
	require.NoError(t, err)

	kinds := kindsByTarget(entries)
	require.Len(t, kinds, 1)
	require.Equal(t, core.KindMove, kinds["readme.txt"])
}

func TestPlanMissingOriginTreatsAllAsNew(t *testing.T) {
	dest := t.TempDir()
	writeTree(t, dest, map[string]string{"a": "x"})

	entries, err := newPlanner(t).Plan(filepath.Join(dest, "does-not-exist"), dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.KindNew, entries[0].Kind)
}
