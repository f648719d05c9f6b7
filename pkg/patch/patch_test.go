package patch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jpenney/pdar/pkg/core"
	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
	"github.com/jpenney/pdar/pkg/plan"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	result := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		result[filepath.ToSlash(relative)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return result
}

func testPatcher(t *testing.T, root string) *Patcher {
	t.Helper()
	engine, err := hashing.New(hashing.SHA1)
	require.NoError(t, err)
	return &Patcher{
		Root:         root,
		Hashing:      engine,
		Delta:        &delta.RsyncDeltaCodec{},
		ErrorHandler: DefaultErrorHandler{},
	}
}

func planAndApply(t *testing.T, origin, dest map[string]string) (string, string) {
	t.Helper()

	originDir := t.TempDir()
	destDir := t.TempDir()
	targetDir := t.TempDir()

	writeTree(t, originDir, origin)
	writeTree(t, destDir, dest)
	writeTree(t, targetDir, origin)

	engine, err := hashing.New(hashing.SHA1)
	require.NoError(t, err)

	planner := &plan.Planner{
		Hashing: engine,
		Delta:   &delta.RsyncDeltaCodec{},
	}
	entries, err := planner.Plan(originDir, destDir)
	require.NoError(t, err)

	archive := &core.Archive{
		Header:  core.NewHeader(hashing.SHA1, time.Now()),
		Entries: entries,
	}

	patcher := testPatcher(t, targetDir)
	require.NoError(t, patcher.Apply(archive))

	return targetDir, destDir
}

func TestScenarioS1Diff(t *testing.T) {
	targetDir, destDir := planAndApply(t, map[string]string{"a": "x"}, map[string]string{"a": "y"})
	require.Equal(t, readTree(t, destDir), readTree(t, targetDir))
}

func TestScenarioS2New(t *testing.T) {
	targetDir, destDir := planAndApply(t,
		map[string]string{"a": "x"},
		map[string]string{"a": "x", "b": "z"})
	require.Equal(t, readTree(t, destDir), readTree(t, targetDir))
}

func TestScenarioS3Delete(t *testing.T) {
	targetDir, destDir := planAndApply(t, map[string]string{"a": "x"}, map[string]string{})
	require.Equal(t, readTree(t, destDir), readTree(t, targetDir))
}

func TestScenarioS4Move(t *testing.T) {
	targetDir, destDir := planAndApply(t,
		map[string]string{"a": "x"},
		map[string]string{"b": "x"})
	require.Equal(t, readTree(t, destDir), readTree(t, targetDir))
}

func TestScenarioS5Copy(t *testing.T) {
	targetDir, destDir := planAndApply(t,
		map[string]string{"a": "x"},
		map[string]string{"a": "x", "b": "x"})
	require.Equal(t, readTree(t, destDir), readTree(t, targetDir))
}

func TestScenarioS6Swap(t *testing.T) {
	targetDir, destDir := planAndApply(t,
		map[string]string{"a": "x", "b": "y"},
		map[string]string{"a": "y", "b": "x"})
	require.Equal(t, readTree(t, destDir), readTree(t, targetDir))
}

func TestIdempotentReapply(t *testing.T) {
	originDir := t.TempDir()
	destDir := t.TempDir()
	targetDir := t.TempDir()

	writeTree(t, originDir, map[string]string{"a": "x"})
	writeTree(t, destDir, map[string]string{"a": "y"})
	writeTree(t, targetDir, map[string]string{"a": "x"})

	engine, err := hashing.New(hashing.SHA1)
	require.NoError(t, err)
	planner := &plan.Planner{Hashing: engine, Delta: &delta.RsyncDeltaCodec{}}
	entries, err := planner.Plan(originDir, destDir)
	require.NoError(t, err)

	archive := &core.Archive{Header: core.NewHeader(hashing.SHA1, time.Now()), Entries: entries}

	patcher := testPatcher(t, targetDir)
	require.NoError(t, patcher.Apply(archive))
	require.NoError(t, patcher.Apply(archive))

	require.Equal(t, "y", readTree(t, targetDir)["a"])
}

func TestRollbackOnEntryFailure(t *testing.T) {
	targetDir := t.TempDir()
	writeTree(t, targetDir, map[string]string{"a": "x", "b": "y"})

	engine, err := hashing.New(hashing.SHA1)
	require.NoError(t, err)
	deltaCodec := &delta.RsyncDeltaCodec{}

	goodPayload, err := deltaCodec.Diff([]byte("x"), []byte("y"))
	require.NoError(t, err)

	archive := &core.Archive{
		Header: core.NewHeader(hashing.SHA1, time.Now()),
		Entries: []*core.Entry{
			{
				Kind:       core.KindDiff,
				Target:     "a",
				OrigDigest: engine.HashBytes([]byte("x")),
				DestDigest: engine.HashBytes([]byte("y")),
				Mode:       0o644,
				Payload:    goodPayload,
			},
			{
				Kind:       core.KindDiff,
				Target:     "b",
				OrigDigest: engine.HashBytes([]byte("y")),
				// DestDigest deliberately wrong, forcing a postcondition
				// (PatchedFile) failure after "a" has already committed.
				DestDigest: engine.HashBytes([]byte("not-what-b-becomes")),
				Mode:       0o644,
				Payload:    mustDiffPayload(t, deltaCodec, "y", "x"),
			},
		},
	}

	patcher := testPatcher(t, targetDir)
	err = patcher.Apply(archive)
	require.Error(t, err)

	final := readTree(t, targetDir)
	require.Equal(t, "x", final["a"], "entry a should have rolled back to its origin content")
	require.Equal(t, "y", final["b"], "entry b should be untouched since it never committed")

	entries, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), "pdar-temporary-backup", "no stray backup files should remain after rollback")
	}
}

func mustDiffPayload(t *testing.T, codec delta.BinaryDeltaCodec, old, new string) []byte {
	t.Helper()
	payload, err := codec.Diff([]byte(old), []byte(new))
	require.NoError(t, err)
	return payload
}
