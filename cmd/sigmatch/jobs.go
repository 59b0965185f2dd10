package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Run executes the jobs command.
func (c *JobsCmd) Run(deps *Dependencies) error {
	filter := sigmatch.JobFilter{Limit: c.Limit}
	if c.Type != "" {
		jobType := sigmatch.JobType(c.Type)
		filter.JobType = &jobType
	}
	jobs, err := deps.Jobs.FindJobs(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(deps.Stdout, "No jobs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		duration := "-"
		if j.CompletedAt != nil {
			duration = j.CompletedAt.Sub(j.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			string(j.JobType),
			string(j.Status),
			j.StartedAt.Format(time.DateTime),
			duration,
			strconv.Itoa(j.ItemsProcessed) + "/" + strconv.Itoa(j.ItemsTotal),
			strconv.Itoa(j.ItemsFailed),
			j.Error,
		})
	}
	writeTable(deps.Stdout, []string{"TYPE", "STATUS", "STARTED", "DURATION", "PROCESSED", "FAILED", "ERROR"}, rows)
	return nil
}
