package catalog

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRunLifecycle(t *testing.T) {
	c := openTest(t)

	run, err := c.BeginRun("bronze", "courtlistener", "https://example.com/opinions.csv.bz2", "/data/bronze")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("expected running status, got %s", run.Status)
	}

	if err := c.FinishRun(run.ID, 1234, 9999); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := c.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != StatusDone || got.Rows != 1234 || got.Bytes != 9999 {
		t.Errorf("unexpected run state: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("finished_at should be set")
	}

	// A finished run cannot transition again.
	if err := c.FinishRun(run.ID, 1, 1); err == nil {
		t.Error("expected error finishing an already-done run")
	}
}

func TestFailRun(t *testing.T) {
	c := openTest(t)

	run, err := c.BeginRun("bronze", "", "https://example.com/x.csv.bz2", "/data/bronze")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := c.FailRun(run.ID, errors.New("connection reset")); err != nil {
		t.Fatalf("FailRun failed: %v", err)
	}

	got, err := c.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "connection reset" {
		t.Errorf("unexpected run state: %+v", got)
	}
}

func TestRecordAndListShards(t *testing.T) {
	c := openTest(t)

	run, err := c.BeginRun("bronze", "courtlistener", "u", "/data/bronze/opinions")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		err := c.RecordShard(run.ID, Shard{
			RunID:  run.ID,
			Index:  i,
			Path:   filepath.Join("/data/bronze/opinions", "part-0000"+string(rune('0'+i))+".parquet"),
			Rows:   100,
			Bytes:  2048,
			SHA256: "abc",
		})
		if err != nil {
			t.Fatalf("RecordShard %d failed: %v", i, err)
		}
	}

	shards, err := c.RunShards(run.ID)
	if err != nil {
		t.Fatalf("RunShards failed: %v", err)
	}
	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	for i, s := range shards {
		if s.Index != i {
			t.Errorf("shard order wrong: %+v", s)
		}
	}

	// Duplicate index for the same run is rejected.
	err = c.RecordShard(run.ID, Shard{Index: 1, Path: "dup", SHA256: "x"})
	if err == nil {
		t.Error("expected unique constraint error for duplicate shard index")
	}

	under, err := c.ShardsUnder("/data/bronze")
	if err != nil {
		t.Fatalf("ShardsUnder failed: %v", err)
	}
	if len(under) != 3 {
		t.Errorf("expected 3 shards under /data/bronze, got %d", len(under))
	}
	under, err = c.ShardsUnder("/data/silver")
	if err != nil {
		t.Fatalf("ShardsUnder failed: %v", err)
	}
	if len(under) != 0 {
		t.Errorf("expected no shards under /data/silver, got %d", len(under))
	}
}

func TestLayerTotals(t *testing.T) {
	c := openTest(t)

	run, _ := c.BeginRun("bronze", "", "u", "/d")
	c.RecordShard(run.ID, Shard{Index: 0, Path: "/d/part-00000.parquet", Rows: 10, Bytes: 100, SHA256: "a"})
	c.RecordShard(run.ID, Shard{Index: 1, Path: "/d/part-00001.parquet", Rows: 5, Bytes: 50, SHA256: "b"})
	c.FinishRun(run.ID, 15, 150)

	// A failed run should not count.
	bad, _ := c.BeginRun("bronze", "", "u", "/d2")
	c.FailRun(bad.ID, errors.New("boom"))

	totals, err := c.LayerTotals()
	if err != nil {
		t.Fatalf("LayerTotals failed: %v", err)
	}
	bronze := totals["bronze"]
	if bronze.Runs != 1 || bronze.Shards != 2 || bronze.Rows != 15 || bronze.Bytes != 150 {
		t.Errorf("unexpected bronze totals: %+v", bronze)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	c := openTest(t)

	a, _ := c.BeginRun("bronze", "", "u1", "/a")
	b, _ := c.BeginRun("silver", "", "u2", "/b")

	runs, err := c.Runs(10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	_ = a
	_ = b
}
