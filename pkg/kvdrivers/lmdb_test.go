package kvdrivers_test

import (
	"testing"

	"github.com/ankur-anand/statusdb/pkg/kvdrivers"
)

func TestLMDB_Suite(t *testing.T) {
	lmdbConstructor := func(path string, config kvdrivers.Config) (btreeStore, error) {
		return kvdrivers.NewLmdb(path, config)
	}

	runSuites(t, "lmdb", &testSuite{
		dbConstructor: lmdbConstructor,
		pathName:      "lmdb_test.lmdb",
	})
}
