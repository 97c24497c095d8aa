package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *recordingMirror) Put(_ context.Context, key string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.err
}

func TestIndexedPath(t *testing.T) {
	testCases := []struct {
		path string
		i    int
		want string
	}{
		{"hero.png", 0, "hero.png"},
		{"hero.png", 1, "hero_1.png"},
		{filepath.Join("a", "b.c.png"), 3, filepath.Join("a", "b.c_3.png")},
		{"noext", 2, "noext_2"},
	}
	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, IndexedPath(tc.path, tc.i))
		})
	}
}

func TestStore_SaveWritesEveryImage(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	mirror := &recordingMirror{}
	store := NewStore(dir, "run-20250101-120000-demo", mirror)

	// --- Act ---
	paths, err := store.Save(context.Background(), filepath.Join("themes", "noir.png"), [][]byte{[]byte("one"), []byte("two")})

	// --- Assert ---
	require.NoError(t, err)
	root := filepath.Join(dir, "run-20250101-120000-demo")
	require.Equal(t, []string{
		filepath.Join(root, "themes", "noir.png"),
		filepath.Join(root, "themes", "noir_1.png"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, []string{
		"run-20250101-120000-demo/themes/noir.png",
		"run-20250101-120000-demo/themes/noir_1.png",
	}, mirror.keys)

	leftovers, err := filepath.Glob(filepath.Join(root, "themes", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStore_MirrorFailureDoesNotFailSave(t *testing.T) {
	// --- Arrange ---
	store := NewStore(t.TempDir(), "", &recordingMirror{err: errors.New("bucket gone")})

	// --- Act ---
	paths, err := store.Save(context.Background(), "hero.png", [][]byte{[]byte("x")})

	// --- Assert ---
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestWriteFile_Overwrites(t *testing.T) {
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, WriteFile(path, []byte("old")))

	// --- Act ---
	err := WriteFile(path, []byte("new"))

	// --- Assert ---
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMirrorConfig_Validate(t *testing.T) {
	valid := MirrorConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "renders"}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	assert.ErrorContains(t, invalid.Validate(), "scheme")

	invalid = valid
	invalid.Bucket = " "
	assert.ErrorContains(t, invalid.Validate(), "bucket")
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "renders/run-1/hero.png", ObjectKey("renders", "run-1/hero.png"))
	assert.Equal(t, "hero.png", ObjectKey("", "hero.png"))
}
