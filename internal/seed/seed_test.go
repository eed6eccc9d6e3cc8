package seed

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Laisky/errors/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/synset-tree/internal/records"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<ImageNetStructure>
  <releaseData>fall2011</releaseData>
  <synset wnid="fall11" words="ImageNet 2011 Fall Release" gloss="root">
    <synset wnid="n00017222" words="plant, flora, plant life" gloss="a living organism">
      <synset wnid="n00019046" words="phytoplankton" gloss="photosynthetic"/>
    </synset>
    <synset wnid="n00015388" words="animal, animate being" gloss="a living organism">
      <synset wnid="n01317541" words="domestic animal" gloss="tame">
        <synset wnid="n02084071" words="dog" gloss="canine"/>
        <synset wnid="n02121808" words="domestic cat" gloss="feline"/>
      </synset>
    </synset>
  </synset>
</ImageNetStructure>`

func TestParseImageNet(t *testing.T) {
	rows, err := ParseImageNet(strings.NewReader(sampleXML))
	require.NoError(t, err)

	root := "ImageNet 2011 Fall Release"
	require.Equal(t, []records.Record{
		{Name: root, Size: 6},
		{Name: root + " > plant, flora, plant life", Size: 1},
		{Name: root + " > plant, flora, plant life > phytoplankton", Size: 0},
		{Name: root + " > animal, animate being", Size: 3},
		{Name: root + " > animal, animate being > domestic animal", Size: 2},
		{Name: root + " > animal, animate being > domestic animal > dog", Size: 0},
		{Name: root + " > animal, animate being > domestic animal > domestic cat", Size: 0},
	}, rows)
}

func TestParseImageNetRejectsBadInput(t *testing.T) {
	_, err := ParseImageNet(strings.NewReader("<ImageNetStructure>"))
	require.Error(t, err)

	_, err = ParseImageNet(strings.NewReader("<ImageNetStructure><releaseData>x</releaseData></ImageNetStructure>"))
	require.Error(t, err)
}

func newSQLiteStore(t *testing.T) *records.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	store, err := records.NewStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSeedBatchesIntoStore(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	rows, err := ParseImageNet(strings.NewReader(sampleXML))
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, store, rows, Options{BatchSize: 3}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, len(rows), n)

	roots, err := store.FetchRootRecords(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.EqualValues(t, 6, roots[0].Size)

	// seeding again with truncate replaces rather than duplicates
	require.NoError(t, Seed(ctx, store, rows, Options{Truncate: true}))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, len(rows), n)
}

type failingWriter struct {
	*records.Store
	failAt  int
	inserts int
}

func (f *failingWriter) InsertBatch(ctx context.Context, tx *sql.Tx, batch []records.Record) error {
	f.inserts++
	if f.inserts == f.failAt {
		return errors.New("constraint violation")
	}
	return f.Store.InsertBatch(ctx, tx, batch)
}

func TestSeedRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	w := &failingWriter{Store: store, failAt: 2}

	rows, err := ParseImageNet(strings.NewReader(sampleXML))
	require.NoError(t, err)

	err = Seed(ctx, w, rows, Options{BatchSize: 2})
	require.Error(t, err)
	require.Contains(t, err.Error(), "batch 2/4")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "first batch must be rolled back")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "structure.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleXML), 0o600))

	rows, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 7)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
}
