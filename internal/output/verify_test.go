package output

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/hash/sha256"
	"github.com/JakeFAU/census-catalog-builder/internal/storage/memory"
)

func writtenFS(t *testing.T) fstest.MapFS {
	t.Helper()
	store := memory.NewBlobStore()
	w, err := NewWriter([]catalog.BlobStore{store}, sha256.New(), fixedClock{now: time.Unix(0, 0).UTC()}, fixedIDs{id: "run"}, Config{}, nil)
	require.NoError(t, err)
	_, err = w.Write(context.Background(), sampleRows(t))
	require.NoError(t, err)

	fsys := fstest.MapFS{}
	for _, p := range store.Paths() {
		obj, _ := store.Get(p)
		fsys[p] = &fstest.MapFile{Data: obj.Data}
	}
	return fsys
}

func TestVerify_Clean(t *testing.T) {
	t.Parallel()

	m, mismatches, err := Verify(writtenFS(t), "", sha256.New())
	require.NoError(t, err)
	assert.Empty(t, mismatches)
	assert.Equal(t, "run", m.RunID)
}

func TestVerify_DetectsTampering(t *testing.T) {
	t.Parallel()

	fsys := writtenFS(t)
	csvData := append([]byte(nil), fsys[DefaultCSVName].Data...)
	csvData[0] = 'T'
	fsys[DefaultCSVName] = &fstest.MapFile{Data: csvData}
	delete(fsys, DefaultJSONName)

	_, mismatches, err := Verify(fsys, DefaultManifestName, sha256.New())
	require.NoError(t, err)
	assert.Equal(t, []Mismatch{
		{Name: DefaultCSVName, Reason: "sha256 mismatch"},
		{Name: DefaultJSONName, Reason: "missing"},
	}, mismatches)
}

func TestVerify_MissingManifest(t *testing.T) {
	t.Parallel()

	_, _, err := Verify(fstest.MapFS{}, "", sha256.New())
	require.Error(t, err)
}
