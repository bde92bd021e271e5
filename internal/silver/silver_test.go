package silver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caselake/internal/catalog"
	"caselake/internal/config"
	"caselake/internal/shard"
)

func writeBronze(t *testing.T, dir string, rows []shard.Opinion, rowsPerShard int) {
	t.Helper()
	w, err := shard.NewWriter[shard.Opinion](dir, rowsPerShard)
	require.NoError(t, err)
	require.NoError(t, w.Write(rows))
	require.NoError(t, w.Close())
}

func longText(i, n int) string {
	return strings.Repeat(fmt.Sprintf("Opinion %d body. ", i), n)
}

func testSetup(t *testing.T) (*config.Config, *catalog.Catalog) {
	t.Helper()
	cfg := config.DefaultConfig()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cfg, cat
}

func TestRun_FilterAndDerive(t *testing.T) {
	cfg, cat := testSetup(t)
	bronzeDir := filepath.Join(t.TempDir(), "bronze")
	outDir := filepath.Join(t.TempDir(), "silver")

	writeBronze(t, bronzeDir, []shard.Opinion{
		{ID: "1", Type: "lead", AuthorID: "9", PlainText: longText(1, 20)},
		{ID: "2", Type: "dissent", PlainText: "too short"},
		{ID: "3", Type: "lead", PlainText: ""},
		{ID: "4", Type: "concur", AuthorID: "7", PlainText: "  " + longText(4, 20) + "\x00\x00"},
	}, 100)

	sum, err := Run(context.Background(), cfg, cat, Options{
		BronzeDir:  bronzeDir,
		OutDir:     outDir,
		MinTextLen: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4), sum.RowsIn)
	assert.Equal(t, int64(2), sum.RowsKept)
	assert.Equal(t, 1, sum.InputShards)
	require.Len(t, sum.Shards, 1)

	rows, err := parquet.ReadFile[shard.SilverOpinion](sum.Shards[0].Path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, "4", rows[1].ID)
	// NUL bytes and padding are cleaned, and text_length matches.
	assert.NotContains(t, rows[1].PlainText, "\x00")
	assert.Equal(t, int64(len([]rune(rows[1].PlainText))), rows[1].TextLength)

	run, err := cat.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDone, run.Status)
	assert.Equal(t, "silver", run.Layer)
}

func TestRun_MultipleInputShards(t *testing.T) {
	cfg, cat := testSetup(t)
	bronzeDir := filepath.Join(t.TempDir(), "bronze")

	var rows []shard.Opinion
	for i := 0; i < 10; i++ {
		rows = append(rows, shard.Opinion{ID: fmt.Sprint(i), PlainText: longText(i, 10)})
	}
	writeBronze(t, bronzeDir, rows, 4) // 3 bronze shards

	sum, err := Run(context.Background(), cfg, cat, Options{
		BronzeDir:  bronzeDir,
		OutDir:     filepath.Join(t.TempDir(), "silver"),
		MinTextLen: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.InputShards)
	assert.Equal(t, int64(10), sum.RowsIn)
	assert.Equal(t, int64(10), sum.RowsKept)
}

func TestRun_SampleIsSeededAndStable(t *testing.T) {
	cfg, cat := testSetup(t)
	bronzeDir := filepath.Join(t.TempDir(), "bronze")

	var rows []shard.Opinion
	for i := 0; i < 50; i++ {
		rows = append(rows, shard.Opinion{ID: fmt.Sprint(i), PlainText: longText(i, 10)})
	}
	writeBronze(t, bronzeDir, rows, 100)

	run1, err := Run(context.Background(), cfg, cat, Options{
		BronzeDir:  bronzeDir,
		OutDir:     filepath.Join(t.TempDir(), "s1"),
		MinTextLen: 10,
		SampleSize: 10,
		Seed:       42,
	})
	require.NoError(t, err)
	assert.True(t, run1.Sampled)
	assert.Equal(t, int64(10), run1.RowsKept)

	run2, err := Run(context.Background(), cfg, cat, Options{
		BronzeDir:  bronzeDir,
		OutDir:     filepath.Join(t.TempDir(), "s2"),
		MinTextLen: 10,
		SampleSize: 10,
		Seed:       42,
	})
	require.NoError(t, err)

	got1, err := parquet.ReadFile[shard.SilverOpinion](run1.Shards[0].Path)
	require.NoError(t, err)
	got2, err := parquet.ReadFile[shard.SilverOpinion](run2.Shards[0].Path)
	require.NoError(t, err)
	assert.Equal(t, got1, got2, "same seed must select the same sample")

	// Sample preserves source order.
	for i := 1; i < len(got1); i++ {
		a, b := got1[i-1].ID, got1[i].ID
		assert.True(t, len(a) < len(b) || (len(a) == len(b) && a < b),
			"sample out of order: %s before %s", a, b)
	}
}

func TestRun_SampleLargerThanRowsKeepsAll(t *testing.T) {
	cfg, cat := testSetup(t)
	bronzeDir := filepath.Join(t.TempDir(), "bronze")
	writeBronze(t, bronzeDir, []shard.Opinion{
		{ID: "1", PlainText: longText(1, 10)},
		{ID: "2", PlainText: longText(2, 10)},
	}, 100)

	sum, err := Run(context.Background(), cfg, cat, Options{
		BronzeDir:  bronzeDir,
		OutDir:     filepath.Join(t.TempDir(), "silver"),
		MinTextLen: 10,
		SampleSize: 1000,
	})
	require.NoError(t, err)
	assert.False(t, sum.Sampled)
	assert.Equal(t, int64(2), sum.RowsKept)
}

func TestRun_NoParquetFiles(t *testing.T) {
	cfg, cat := testSetup(t)
	outDir := filepath.Join(t.TempDir(), "silver")

	_, err := Run(context.Background(), cfg, cat, Options{
		BronzeDir: t.TempDir(),
		OutDir:    outDir,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parquet files")

	// No run recorded, no output dir created.
	runs, err := cat.Runs(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoDirExists(t, outDir)
}

func TestTextStats(t *testing.T) {
	rows := []shard.SilverOpinion{
		{TextLength: 10}, {TextLength: 20}, {TextLength: 30}, {TextLength: 100},
	}
	stats := textStats(rows)
	assert.Equal(t, 40.0, stats.Mean)
	assert.Equal(t, 25.0, stats.Median)
	assert.Equal(t, int64(10), stats.Min)
	assert.Equal(t, int64(100), stats.Max)

	assert.Zero(t, textStats(nil))
}

func TestClean(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"a\x00b", "ab"},
		{"line one\r\nline two", "line one\nline two"},
		{"a\rb", "a\nb"},
		{"para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"spaced   out\twords", "spaced out words"},
		{"  \n trimmed \n  ", "trimmed"},
		{"trailing spaces   \nnext", "trailing spaces\nnext"},
	}
	for _, tc := range cases {
		if got := Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
