package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"caselake/internal/catalog"
)

var statusRunLimit int

var (
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	statusLayerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	statusFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	statusOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// statusCmd summarizes the ingestion catalog.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog totals and recent runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRunLimit, "runs", 10, "number of recent runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Open(cfg.Catalog.DatabasePath)
	if err != nil {
		return err
	}
	defer cat.Close()

	totals, err := cat.LayerTotals()
	if err != nil {
		return err
	}

	fmt.Println(statusHeaderStyle.Render("Layers"))
	if len(totals) == 0 {
		fmt.Println("  no completed runs")
	}
	for _, layer := range []string{"bronze", "silver"} {
		t, ok := totals[layer]
		if !ok {
			continue
		}
		fmt.Printf("  %s  %d run(s), %d shard(s), %s rows, %s\n",
			statusLayerStyle.Render(fmt.Sprintf("%-7s", layer)),
			t.Runs, t.Shards, humanize.Comma(t.Rows), humanize.Bytes(uint64(t.Bytes)))
	}

	runs, err := cat.Runs(statusRunLimit)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(statusHeaderStyle.Render("Recent runs"))
	if len(runs) == 0 {
		fmt.Println("  none")
	}
	for _, r := range runs {
		status := statusOKStyle.Render(r.Status)
		if r.Status == catalog.StatusFailed {
			status = statusFailStyle.Render(r.Status)
		}
		fmt.Printf("  %s  %-7s %-8s %s rows  %s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Layer, status, humanize.Comma(r.Rows), r.OutDir, shortID(r.ID))
		if r.Error != "" {
			fmt.Printf("      %s\n", statusFailStyle.Render(r.Error))
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
