package recordstore

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(engine Engine) *Config {
	conf := NewDefaultConfig()
	conf.Engine = engine
	conf.NoSync = true
	conf.MmapSize = 1 << 26
	conf.FilterExpectedItems = 1000
	return conf
}

func openTestStore(t *testing.T, dir string, conf *Config) *Store {
	t.Helper()
	store, err := Open(dir, conf)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func forEachEngine(t *testing.T, fn func(t *testing.T, engine Engine)) {
	for _, engine := range []Engine{BoltEngine, LMDBEngine} {
		t.Run(string(engine), func(t *testing.T) {
			fn(t, engine)
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine Engine) {
		store := openTestStore(t, t.TempDir(), testConfig(engine))

		require.NoError(t, store.Set("bob_near", "hello"))

		msg, found, err := store.Get("bob_near")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "hello", msg)

		_, found, err = store.Get("francis.near")
		require.NoError(t, err)
		assert.False(t, found, "account that never wrote must be absent")
	})
}

func TestStore_Overwrite(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine Engine) {
		store := openTestStore(t, t.TempDir(), testConfig(engine))

		require.NoError(t, store.Set("alice", "a"))
		require.NoError(t, store.Set("alice", "b"))

		msg, found, err := store.Get("alice")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "b", msg)
	})
}

func TestStore_EmptyMessageIsPresent(t *testing.T) {
	store := openTestStore(t, t.TempDir(), testConfig(BoltEngine))

	require.NoError(t, store.Set("carol", ""))
	msg, found, err := store.Get("carol")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "", msg)
}

func TestStore_EmptyAccountID(t *testing.T) {
	store := openTestStore(t, t.TempDir(), testConfig(BoltEngine))

	err := store.Set("", "x")
	assert.ErrorIs(t, err, ErrEmptyAccountID)

	_, found, err := store.Get("")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_AccountIDsAreOpaque(t *testing.T) {
	store := openTestStore(t, t.TempDir(), testConfig(BoltEngine))

	require.NoError(t, store.Set("Bob", "upper"))
	require.NoError(t, store.Set("bob", "lower"))
	require.NoError(t, store.Set("bob ", "space"))

	for account, want := range map[string]string{"Bob": "upper", "bob": "lower", "bob ": "space"} {
		msg, found, err := store.Get(account)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, msg)
	}
}

func TestStore_ReopenKeepsRecords(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine Engine) {
		dir := t.TempDir()
		conf := testConfig(engine)

		store, err := Open(dir, conf)
		require.NoError(t, err)

		inserted := make(map[string]string)
		for i := 0; i < 50; i++ {
			account := gofakeit.UUID()
			msg := gofakeit.Sentence(5)
			inserted[account] = msg
			require.NoError(t, store.Set(account, msg))
		}
		require.NoError(t, store.Close())

		reopened := openTestStore(t, dir, conf)
		for account, want := range inserted {
			msg, found, err := reopened.Get(account)
			require.NoError(t, err)
			assert.True(t, found, "record %s lost after reopen", account)
			assert.Equal(t, want, msg)
		}
		assert.Equal(t, uint64(0), reopened.Stats().GetMisses)
	})
}

func TestStore_FilterRebuiltAfterCrash(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine Engine) {
		dir := t.TempDir()
		conf := testConfig(engine)

		store, err := Open(dir, conf)
		require.NoError(t, err)
		require.NoError(t, store.Set("bob_near", "hello"))

		// simulate a crash: the driver is closed without persisting the filter
		// and without writing the clean marker.
		require.NoError(t, store.dataStore.FSync())
		require.NoError(t, store.dataStore.Close())
		require.NoError(t, store.fileLock.Unlock())

		reopened := openTestStore(t, dir, conf)
		msg, found, err := reopened.Get("bob_near")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "hello", msg)
	})
}

func TestStore_FilterLoadedAfterCleanClose(t *testing.T) {
	dir := t.TempDir()
	conf := testConfig(BoltEngine)

	store, err := Open(dir, conf)
	require.NoError(t, err)
	require.NoError(t, store.Set("bob_near", "hello"))
	require.NoError(t, store.Close())

	reopened := openTestStore(t, dir, conf)
	clean, err := reopened.dataStore.RetrieveMetadata(sysKeyClean)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, clean, "an open store must be marked dirty")
	assert.True(t, reopened.filter.Test([]byte("bob_near")))

	_, found, err := reopened.Get("francis.near")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_DirectoryLocked(t *testing.T) {
	dir := t.TempDir()
	conf := testConfig(BoltEngine)

	openTestStore(t, dir, conf)

	_, err := Open(dir, conf)
	assert.ErrorIs(t, err, ErrDatabaseDirInUse)
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	dir := t.TempDir()
	confA := testConfig(BoltEngine)
	confA.Namespace = "a"
	confB := testConfig(BoltEngine)
	confB.Namespace = "b"

	storeA := openTestStore(t, dir, confA)
	storeB := openTestStore(t, dir, confB)

	require.NoError(t, storeA.Set("bob_near", "from a"))
	_, found, err := storeB.Get("bob_near")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "b", storeB.Namespace())
}

func TestStore_Closed(t *testing.T) {
	store, err := Open(t.TempDir(), testConfig(BoltEngine))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "second close is a no-op")

	assert.ErrorIs(t, store.Set("bob_near", "hello"), ErrStoreClosed)
	_, _, err = store.Get("bob_near")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Snapshot(&bytes.Buffer{}), ErrStoreClosed)
}

func TestStore_CorruptedRecord(t *testing.T) {
	store := openTestStore(t, t.TempDir(), testConfig(BoltEngine))

	require.NoError(t, store.Set("bob_near", "hello"))
	// a length prefix that claims more bytes than are stored.
	require.NoError(t, store.dataStore.SetKV([]byte("bob_near"), []byte{9, 0, 0, 0, 'h'}))

	_, found, err := store.Get("bob_near")
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrRecordCorrupted)

	value := msgcodec.AppendString(nil, "hello")
	value = append(value, 0xff)
	require.NoError(t, store.dataStore.SetKV([]byte("bob_near"), value))
	_, _, err = store.Get("bob_near")
	assert.ErrorIs(t, err, ErrRecordCorrupted)
}

func TestStore_Snapshot(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine Engine) {
		store := openTestStore(t, t.TempDir(), testConfig(engine))
		require.NoError(t, store.Set("bob_near", "hello"))

		var buf bytes.Buffer
		require.NoError(t, store.Snapshot(&buf))
		assert.Positive(t, buf.Len())
	})
}

func TestStore_Stats(t *testing.T) {
	store := openTestStore(t, t.TempDir(), testConfig(BoltEngine))

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Set(fmt.Sprintf("account-%d", i), gofakeit.LetterN(20)))
	}
	for i := 0; i < 20; i++ {
		_, _, err := store.Get(fmt.Sprintf("account-%d", i))
		require.NoError(t, err)
	}

	stats := store.Stats()
	assert.Equal(t, uint64(10), stats.Sets)
	assert.Equal(t, uint64(20), stats.Gets)
	assert.Equal(t, uint64(10), stats.GetMisses)
	assert.LessOrEqual(t, stats.FilterSkips, stats.GetMisses)
	assert.Equal(t, "bolt", stats.Engine)
	assert.Equal(t, DefaultNamespace, stats.Namespace)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   error
	}{
		{name: "default", modify: func(c *Config) {}},
		{name: "empty_namespace", modify: func(c *Config) { c.Namespace = "" }, want: ErrInvalidConfig},
		{name: "unknown_engine", modify: func(c *Config) { c.Engine = "rocks" }, want: ErrUnsupportedEngine},
		{name: "zero_items", modify: func(c *Config) { c.FilterExpectedItems = 0 }, want: ErrInvalidConfig},
		{name: "bad_rate", modify: func(c *Config) { c.FilterFalsePositiveRate = 1 }, want: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := NewDefaultConfig()
			tt.modify(conf)
			err := conf.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, BoltEngine, e)

	e, err = ParseEngine(" LMDB ")
	require.NoError(t, err)
	assert.Equal(t, LMDBEngine, e)

	_, err = ParseEngine("badger")
	assert.ErrorIs(t, err, ErrUnsupportedEngine)
}
