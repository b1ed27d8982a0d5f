package graphml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirLoader_Artifacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alice", "a1.graphml"), stapler)
	writeFile(t, filepath.Join(root, "bob", "b1.graphml"), "broken")

	l := DirLoader{Root: root}

	g, err := l.LoadArtifact("alice", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Stapler", g.Name)

	g, err = l.LoadArtifact("", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Stapler", g.Name)

	_, err = l.LoadArtifact("alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.LoadArtifact("", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.LoadArtifact("bob", "b1")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = l.LoadArtifact("alice", "../bob/b1")
	assert.Error(t, err)
}

func TestDirLoader_Baselines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stapler.graphml"), stapler)
	writeFile(t, filepath.Join(root, "1.6", "Stapler.graphml"), stapler)

	l := DirLoader{Root: root}
	_, err := l.LoadBaseline("Stapler", "")
	require.NoError(t, err)
	_, err = l.LoadBaseline("Stapler", "1.6")
	require.NoError(t, err)
	_, err = l.LoadBaseline("Smoker", "1.6")
	assert.ErrorIs(t, err, ErrNotFound)

	tags, err := l.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"1.6"}, tags)
}
