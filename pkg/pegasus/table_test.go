package pegasus

import "testing"

func newTestTableHandle(partitionCount int32, primaries ...string) *TableHandle {
	m := &partitionMap{tableName: "t", partitionCount: partitionCount, version: 1}
	m.partitions = make([]partitionEntry, partitionCount)
	for i, p := range primaries {
		m.partitions[i] = partitionEntry{primary: p}
	}
	return newTableHandle(nil, "t", m)
}

func TestTableHandleRouteIsDeterministic(t *testing.T) {
	table := newTestTableHandle(4, "p0:1", "p1:1", "p2:1", "p3:1")

	key, err := encodeKey([]byte("user-42"), []byte("row"))
	if err != nil {
		t.Fatal(err)
	}

	idx1, ep1, err := table.route(key)
	if err != nil {
		t.Fatal(err)
	}
	idx2, ep2, err := table.route(key)
	if err != nil {
		t.Fatal(err)
	}
	if idx1 != idx2 || ep1 != ep2 {
		t.Errorf("expected route to be a pure function of the key, got (%d,%s) then (%d,%s)", idx1, ep1, idx2, ep2)
	}
	if idx1 < 0 || idx1 >= 4 {
		t.Errorf("partition index %d out of range [0,4)", idx1)
	}
}

func TestTableHandleSwapIfNewerIgnoresStaleVersions(t *testing.T) {
	table := newTestTableHandle(1, "old-primary:1")
	table.snapshot.Load().version = 5

	stale := &partitionMap{tableName: "t", partitionCount: 1, version: 3, partitions: []partitionEntry{{primary: "stale-primary:1"}}}
	table.swapIfNewer(stale)
	if table.snapshot.Load().primary(0) != "old-primary:1" {
		t.Errorf("swapIfNewer installed a stale (lower-version) snapshot")
	}

	fresh := &partitionMap{tableName: "t", partitionCount: 1, version: 6, partitions: []partitionEntry{{primary: "new-primary:1"}}}
	table.swapIfNewer(fresh)
	if table.snapshot.Load().primary(0) != "new-primary:1" {
		t.Errorf("swapIfNewer failed to install a newer snapshot")
	}
}
