package kvdrivers_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/ankur-anand/statusdb/pkg/kvdrivers"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// btreeStore is the surface both drivers expose to the record store.
type btreeStore interface {
	SetKV(key []byte, value []byte) error
	GetKV(key []byte) ([]byte, error)
	ForEachKV(fn kvdrivers.KVVisitor) error
	StoreMetadata(key []byte, value []byte) error
	RetrieveMetadata(key []byte) ([]byte, error)
	Snapshot(w io.Writer) error
	FSync() error
	Fresh() bool
	Close() error
}

// testSuite defines all the test cases that is common in both the lmdb and boltdb.
type testSuite struct {
	dbConstructor func(path string, config kvdrivers.Config) (btreeStore, error)
	pathName      string
}

type suite struct {
	name    string
	runFunc func(*testing.T)
}

func getTestSuites(factory *testSuite) []suite {
	return []suite{
		{name: "set_get", runFunc: factory.TestSetAndGet},
		{name: "overwrite", runFunc: factory.TestOverwrite},
		{name: "missing_key", runFunc: factory.TestMissingKey},
		{name: "empty_key", runFunc: factory.TestEmptyKey},
		{name: "for_each", runFunc: factory.TestForEach},
		{name: "for_each_stops_on_error", runFunc: factory.TestForEachStops},
		{name: "metadata", runFunc: factory.TestMetadata},
		{name: "reopen_keeps_data", runFunc: factory.TestReopenKeepsData},
		{name: "namespaces_are_isolated", runFunc: factory.TestNamespaceIsolation},
		{name: "snapshot", runFunc: factory.TestSnapshot},
		{name: "empty_namespace_rejected", runFunc: factory.TestEmptyNamespace},
	}
}

func runSuites(t *testing.T, name string, ts *testSuite) {
	t.Run(name, func(t *testing.T) {
		for _, tc := range getTestSuites(ts) {
			t.Run(tc.name, func(t *testing.T) {
				tc.runFunc(t)
			})
		}
	})
}

func (s *testSuite) open(t *testing.T, dir, namespace string) btreeStore {
	t.Helper()
	store, err := s.dbConstructor(filepath.Join(dir, s.pathName), kvdrivers.Config{
		Namespace: namespace,
		NoSync:    true,
		MmapSize:  1 << 26,
	})
	require.NoError(t, err)
	return store
}

func (s *testSuite) TestSetAndGet(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	assert.True(t, store.Fresh())

	key := []byte(gofakeit.UUID())
	value := []byte(gofakeit.Sentence(20))
	require.NoError(t, store.SetKV(key, value))

	got, err := store.GetKV(key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func (s *testSuite) TestOverwrite(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	key := []byte("bob")
	require.NoError(t, store.SetKV(key, []byte("m1")))
	require.NoError(t, store.SetKV(key, []byte("m2")))

	got, err := store.GetKV(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("m2"), got)
}

func (s *testSuite) TestMissingKey(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	_, err := store.GetKV([]byte("francis"))
	assert.ErrorIs(t, err, kvdrivers.ErrKeyNotFound)
}

func (s *testSuite) TestEmptyKey(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	_, err := store.GetKV(nil)
	assert.ErrorIs(t, err, kvdrivers.ErrKeyNotFound)

	require.NoError(t, store.SetKV([]byte{}, []byte("anonymous")))
	got, err := store.GetKV(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("anonymous"), got)
}

func (s *testSuite) TestForEach(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	want := make(map[string]string)
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("account-%03d", i)
		v := gofakeit.LetterN(uint(i + 1))
		want[k] = v
		require.NoError(t, store.SetKV([]byte(k), []byte(v)))
	}
	require.NoError(t, store.StoreMetadata([]byte("not-a-record"), []byte("x")))

	got := make(map[string]string)
	err := store.ForEachKV(func(key, value []byte) error {
		got[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func (s *testSuite) TestForEachStops(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SetKV([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}

	stop := errors.New("stop")
	visited := 0
	err := store.ForEachKV(func(key, value []byte) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}

func (s *testSuite) TestMetadata(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	_, err := store.RetrieveMetadata([]byte("clean"))
	assert.ErrorIs(t, err, kvdrivers.ErrKeyNotFound)

	require.NoError(t, store.StoreMetadata([]byte("clean"), []byte{1}))
	got, err := store.RetrieveMetadata([]byte("clean"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)

	// metadata never shows up as a record.
	_, err = store.GetKV([]byte("clean"))
	assert.ErrorIs(t, err, kvdrivers.ErrKeyNotFound)
}

func (s *testSuite) TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	store := s.open(t, dir, "r")
	require.NoError(t, store.SetKV([]byte("bob"), []byte("hello")))
	require.NoError(t, store.FSync())
	require.NoError(t, store.Close())

	store = s.open(t, dir, "r")
	defer store.Close()
	assert.False(t, store.Fresh(), "existing namespace must be reused")

	got, err := store.GetKV([]byte("bob"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func (s *testSuite) TestNamespaceIsolation(t *testing.T) {
	dir := t.TempDir()
	store := s.open(t, dir, "r")
	require.NoError(t, store.SetKV([]byte("bob"), []byte("hello")))
	require.NoError(t, store.Close())

	other := s.open(t, dir, "other")
	defer other.Close()
	assert.True(t, other.Fresh())
	_, err := other.GetKV([]byte("bob"))
	assert.ErrorIs(t, err, kvdrivers.ErrKeyNotFound)
}

func (s *testSuite) TestSnapshot(t *testing.T) {
	store := s.open(t, t.TempDir(), "r")
	defer store.Close()

	require.NoError(t, store.SetKV([]byte("bob"), []byte("hello")))

	var buf bytes.Buffer
	require.NoError(t, store.Snapshot(&buf))
	assert.Positive(t, buf.Len())
	assert.True(t, bytes.Contains(buf.Bytes(), []byte("hello")))
}

func (s *testSuite) TestEmptyNamespace(t *testing.T) {
	_, err := s.dbConstructor(filepath.Join(t.TempDir(), s.pathName), kvdrivers.Config{MmapSize: 1 << 26})
	assert.ErrorIs(t, err, kvdrivers.ErrInvalidNamespace)
}
