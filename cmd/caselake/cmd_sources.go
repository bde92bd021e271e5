package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"caselake/internal/sources"
)

var (
	sourcesDataset string
	sourcesDate    string
)

var (
	sourceKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	sourceDimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sourceNoteStyle = lipgloss.NewStyle().Italic(true)
)

// sourcesCmd prints the upstream bulk-data provider registry.
var sourcesCmd = &cobra.Command{
	Use:   "sources [name]",
	Short: "List upstream bulk-data providers",
	Long: `Lists the registered upstream data providers. With a name, shows the
provider's datasets and resolves a bulk URL:

  caselake sources
  caselake sources courtlistener --dataset opinions --date 2025-09-04`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesDataset, "dataset", "", "dataset to resolve a bulk URL for")
	sourcesCmd.Flags().StringVar(&sourcesDate, "date", "", "snapshot date (YYYY-MM-DD)")
}

func runSources(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, p := range sources.All() {
			bulk := sourceDimStyle.Render("no bulk files")
			if p.HasBulk() {
				bulk = fmt.Sprintf("%d dataset(s)", len(p.Datasets))
			}
			fmt.Printf("%s  %s (%s)\n", sourceKeyStyle.Render(fmt.Sprintf("%-14s", p.Key)), p.Name, bulk)
		}
		return nil
	}

	p, err := sources.Lookup(args[0])
	if err != nil {
		return err
	}

	fmt.Println(sourceKeyStyle.Render(p.Name))
	fmt.Printf("  homepage: %s\n", p.Homepage)
	fmt.Printf("  license:  %s\n", p.License)
	if p.Notes != "" {
		fmt.Printf("  %s\n", sourceNoteStyle.Render(p.Notes))
	}
	if p.HasBulk() {
		fmt.Printf("  datasets: %s\n", strings.Join(p.DatasetNames(), ", "))
	}

	if sourcesDataset != "" {
		url, err := p.ResolveBulkURL(sourcesDataset, sourcesDate)
		if err != nil {
			return err
		}
		fmt.Printf("  %s %s\n", sourceDimStyle.Render("bulk url:"), url)
	}
	return nil
}
