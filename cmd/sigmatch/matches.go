package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Run executes the matches command. Expired matches are listed too; the
// EXPIRES column tells them apart.
func (c *MatchesCmd) Run(deps *Dependencies) error {
	targets, err := deps.Targets.FindTargets(deps.Ctx, sigmatch.TargetFilter{OrganizationID: &c.Org})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}
	names := make(map[string]string, len(targets))
	filter := sigmatch.MatchFilter{OrganizationID: &c.Org, Limit: c.Limit}
	for _, t := range targets {
		names[t.ID] = t.Name
		if c.Target != "" && t.Name == c.Target {
			filter.TargetID = &t.ID
		}
	}
	if c.Target != "" && filter.TargetID == nil {
		err := sigmatch.Errorf(sigmatch.ENOTFOUND, "target %q not found for organization %q", c.Target, c.Org)
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	matches, err := deps.Matches.FindMatches(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	if len(matches) == 0 {
		fmt.Fprintln(deps.Stdout, "No matches found. Run 'sigmatch match' first.")
		return nil
	}

	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		target := names[m.TargetID]
		if target == "" {
			target = m.TargetID
		}
		rows = append(rows, []string{
			target,
			strconv.FormatFloat(m.SimilarityScore, 'f', 3, 64),
			string(m.SignalStrength),
			m.SignalCategory,
			m.MatchedAt.Format(time.DateTime),
			m.ExpiresAt.Format(time.DateTime),
			m.ArticleID,
		})
	}
	writeTable(deps.Stdout, []string{"TARGET", "SIMILARITY", "STRENGTH", "CATEGORY", "MATCHED", "EXPIRES", "ARTICLE"}, rows)
	return nil
}
