package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/fwojciec/sigmatch"
)

// Run executes the select command.
func (c *SelectCmd) Run(deps *Dependencies) error {
	sel, err := deps.Selector.Select(deps.Ctx, c.Org, c.Since)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sel)
	}

	if len(sel.Items) == 0 {
		fmt.Fprintf(deps.Stdout, "No articles selected for %s (%d candidates)\n", sel.OrganizationID, sel.CandidateCount)
		return nil
	}

	rows := make([][]string, 0, len(sel.Items))
	for i, item := range sel.Items {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(item.Similarity, 'f', 3, 64),
			string(item.SignalStrength),
			item.TargetName,
			item.SourceName,
			item.Title,
		})
	}
	writeTable(deps.Stdout, []string{"RANK", "SIMILARITY", "STRENGTH", "TARGET", "SOURCE", "TITLE"}, rows)

	fmt.Fprintln(deps.Stdout)
	fmt.Fprintf(deps.Stdout, "Selected %d of %d candidates, mean similarity %.3f\n",
		len(sel.Items), sel.CandidateCount, sel.MeanSimilarity)
	fmt.Fprintf(deps.Stdout, "Sources: %s\n", formatCounts(sel.Distribution))
	if len(sel.Rejected) > 0 {
		rejected := make(map[string]int, len(sel.Rejected))
		for reason, n := range sel.Rejected {
			rejected[string(reason)] = n
		}
		fmt.Fprintf(deps.Stdout, "Rejected: %s\n", formatCounts(rejected))
	}
	if sel.Duplicates > 0 || sel.SourceCapped > 0 {
		fmt.Fprintf(deps.Stdout, "Skipped: %d duplicates, %d over source cap\n", sel.Duplicates, sel.SourceCapped)
	}
	return nil
}

// formatCounts renders counts as "key=n" pairs in key order.
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return out
}
