package storage

import (
	"reflect"
	"testing"
)

func TestSplitSQLStatements(t *testing.T) {
	script := `-- usage ledger
CREATE TABLE IF NOT EXISTS a (
    x UInt32
) ENGINE = MergeTree ORDER BY x;

-- second
CREATE TABLE IF NOT EXISTS b (y String) ENGINE = Log;
SELECT 1`

	got := splitSQLStatements(script)
	want := []string{
		"CREATE TABLE IF NOT EXISTS a (\n    x UInt32\n) ENGINE = MergeTree ORDER BY x",
		"CREATE TABLE IF NOT EXISTS b (y String) ENGINE = Log",
		"SELECT 1",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSQLStatements() = %#v, want %#v", got, want)
	}
}
