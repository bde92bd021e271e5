// Package verify checks shard files on disk against what the catalog
// recorded for them.
package verify

import (
	"context"
	"fmt"
	"os"

	"caselake/internal/catalog"
	"caselake/internal/logging"
	"caselake/internal/shard"
)

// Mismatch describes one shard that does not match its catalog record.
type Mismatch struct {
	Shard  catalog.Shard
	Reason string
}

// Report summarizes a verification pass.
type Report struct {
	Checked    int
	Mismatches []Mismatch
}

// OK reports whether every checked shard matched.
func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

// Dir verifies every catalogued shard whose path lies under dir.
func Dir(ctx context.Context, cat *catalog.Catalog, dir string) (*Report, error) {
	shards, err := cat.ShardsUnder(dir)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("verify: no catalogued shards under %s", dir)
	}
	logging.Get(logging.CategoryVerify).Info("verifying %d shard(s) under %s", len(shards), dir)

	report := &Report{}
	for _, s := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Checked++

		if _, err := os.Stat(s.Path); os.IsNotExist(err) {
			report.Mismatches = append(report.Mismatches, Mismatch{s, "file missing"})
			continue
		}

		rows, size, sum, err := shard.Stat(s.Path)
		if err != nil {
			report.Mismatches = append(report.Mismatches, Mismatch{s, fmt.Sprintf("unreadable: %v", err)})
			continue
		}
		switch {
		case sum != s.SHA256:
			report.Mismatches = append(report.Mismatches, Mismatch{s, fmt.Sprintf("sha256 %s, catalog has %s", sum[:12], s.SHA256[:min(12, len(s.SHA256))])})
		case size != s.Bytes:
			report.Mismatches = append(report.Mismatches, Mismatch{s, fmt.Sprintf("%d bytes, catalog has %d", size, s.Bytes)})
		case rows != s.Rows:
			report.Mismatches = append(report.Mismatches, Mismatch{s, fmt.Sprintf("%d rows, catalog has %d", rows, s.Rows)})
		}
	}

	logging.Get(logging.CategoryVerify).Info("verify complete: %d checked, %d mismatched",
		report.Checked, len(report.Mismatches))
	return report, nil
}
