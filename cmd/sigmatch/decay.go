package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/decay"
)

// Run executes the decay command.
func (c *DecayCmd) Run(deps *Dependencies) error {
	stats, err := deps.Decayer.Run(deps.Ctx, decay.Options{
		DryRun:         c.DryRun,
		OrganizationID: c.Org,
		ContentType:    c.Type,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	verb := "Decayed"
	if stats.DryRun {
		verb = "Would decay"
	}
	fmt.Fprintf(deps.Stdout, "%s %d of %d items (avg decay %.4f, salience %.3f-%.3f)",
		verb, stats.UpdatedCount, stats.Eligible, stats.AvgDecay, stats.MinSalience, stats.MaxSalience)
	if stats.Skipped > 0 {
		fmt.Fprintf(deps.Stdout, ", %d changed during the run", stats.Skipped)
	}
	fmt.Fprintf(deps.Stdout, " in %s\n", stats.Duration.Round(time.Millisecond))
	return nil
}
