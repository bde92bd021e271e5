// Package sources is the typed registry of upstream bulk-data providers.
// It covers the providers the project ingests from (or plans to), and
// resolves dated bulk-file URLs for the ones that publish snapshot dumps.
package sources

import (
	"fmt"
	"sort"
	"strings"
)

// Provider describes one upstream data source.
type Provider struct {
	Key      string // registry key, e.g. "courtlistener"
	Name     string
	Homepage string
	License  string
	Notes    string

	// Datasets maps dataset name to a bulk-file URL template.
	// Templates may contain {date} (YYYY-MM-DD snapshot date).
	Datasets map[string]string
}

// HasBulk reports whether the provider publishes bulk files we can resolve.
func (p Provider) HasBulk() bool { return len(p.Datasets) > 0 }

// ResolveBulkURL resolves the bulk URL for a dataset and snapshot date.
func (p Provider) ResolveBulkURL(dataset, date string) (string, error) {
	tmpl, ok := p.Datasets[dataset]
	if !ok {
		known := p.DatasetNames()
		return "", fmt.Errorf("source %s has no dataset %q (available: %s)",
			p.Key, dataset, strings.Join(known, ", "))
	}
	if strings.Contains(tmpl, "{date}") {
		if date == "" {
			return "", fmt.Errorf("dataset %s/%s requires a snapshot date (YYYY-MM-DD)", p.Key, dataset)
		}
		return strings.ReplaceAll(tmpl, "{date}", date), nil
	}
	return tmpl, nil
}

// DatasetNames returns the provider's dataset names, sorted.
func (p Provider) DatasetNames() []string {
	names := make([]string, 0, len(p.Datasets))
	for name := range p.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const clBulk = "https://com-courtlistener-storage.s3-us-west-2.amazonaws.com/bulk-data"

var registry = []Provider{
	{
		Key:      "courtlistener",
		Name:     "CourtListener",
		Homepage: "https://www.courtlistener.com",
		License:  "Public domain (bulk data)",
		Notes:    "Free Law Project. Primary source for opinions, dockets, courts, people.",
		Datasets: map[string]string{
			"opinions":          clBulk + "/opinions-{date}.csv.bz2",
			"opinion-clusters":  clBulk + "/opinion-clusters-{date}.csv.bz2",
			"dockets":           clBulk + "/dockets-{date}.csv.bz2",
			"courts":            clBulk + "/courts-{date}.csv.bz2",
			"people-db-people":  clBulk + "/people-db-people-{date}.csv.bz2",
			"citation-map":      clBulk + "/citation-map-{date}.csv.bz2",
			"search_opinion":    clBulk + "/search_opinion-{date}.csv.bz2",
		},
	},
	{
		Key:      "recap",
		Name:     "RECAP Archive",
		Homepage: "https://www.courtlistener.com/recap/",
		License:  "Public domain",
		Notes:    "Federal PACER documents mirrored by Free Law Project. Served through the CourtListener bulk endpoints.",
	},
	{
		Key:      "govinfo",
		Name:     "GovInfo",
		Homepage: "https://www.govinfo.gov",
		License:  "Public domain (US government works)",
		Notes:    "GPO repository: US Courts opinions collection, statutes, Federal Register.",
	},
	{
		Key:      "scdb",
		Name:     "Supreme Court Database (SCDB)",
		Homepage: "http://scdb.wustl.edu",
		License:  "CC BY-NC 3.0",
		Notes:    "Case- and justice-centered SCOTUS voting data. Versioned releases, not dated snapshots.",
		Datasets: map[string]string{
			"case-centered":    "http://scdb.wustl.edu/_brickFiles/2023_01/SCDB_2023_01_caseCentered_Citation.csv.zip",
			"justice-centered": "http://scdb.wustl.edu/_brickFiles/2023_01/SCDB_2023_01_justiceCentered_Citation.csv.zip",
		},
	},
	{
		Key:      "fjc-idb",
		Name:     "FJC Integrated Database",
		Homepage: "https://www.fjc.gov/research/idb",
		License:  "Public domain",
		Notes:    "Federal Judicial Center civil/criminal case terminations.",
	},
	{
		Key:      "oyez",
		Name:     "Oyez",
		Homepage: "https://www.oyez.org",
		License:  "CC BY-NC 4.0",
		Notes:    "SCOTUS oral argument audio and transcripts. API only, no bulk dumps.",
	},
	{
		Key:      "cap",
		Name:     "Caselaw Access Project",
		Homepage: "https://case.law",
		License:  "CC0 (public domain scope)",
		Notes:    "Harvard LIL digitized US case law. Bulk exports per jurisdiction.",
	},
}

// All returns every registered provider, sorted by key.
func All() []Provider {
	out := make([]Provider, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup finds a provider by key (case-insensitive).
func Lookup(key string) (Provider, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, p := range registry {
		if p.Key == k {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("unknown source %q (known: %s)", key, strings.Join(Keys(), ", "))
}

// Keys returns all registry keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for _, p := range registry {
		keys = append(keys, p.Key)
	}
	sort.Strings(keys)
	return keys
}
