package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/yaml"
)

// Run executes the sources import command. Sources that already exist are
// left untouched.
func (c *SourcesImportCmd) Run(deps *Dependencies) error {
	sources, err := yaml.LoadSources(c.Path)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	var created, existing int
	for _, s := range sources {
		err := deps.Sources.CreateSource(deps.Ctx, s)
		switch {
		case sigmatch.ErrorCode(err) == sigmatch.ECONFLICT:
			existing++
		case err != nil:
			fmt.Fprintf(deps.Stderr, "error: source %q: %s\n", s.Name, sigmatch.ErrorMessage(err))
			return err
		default:
			created++
		}
	}

	fmt.Fprintf(deps.Stdout, "Imported %d sources (%d already present)\n", created, existing)
	return nil
}

// Run executes the sources list command.
func (c *SourcesListCmd) Run(deps *Dependencies) error {
	filter := sigmatch.SourceFilter{}
	if c.Inactive {
		inactive := false
		filter.Active = &inactive
	}
	sources, err := deps.Sources.FindSources(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	if len(sources) == 0 {
		fmt.Fprintln(deps.Stdout, "No sources found. Use 'sigmatch sources import' to add some.")
		return nil
	}

	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Tier),
			string(s.DiscoveryMethod),
			activeLabel(s.Active),
			strconv.Itoa(s.ConsecutiveFailures),
			formatOptionalTime(s.LastSuccessAt),
			s.LastError,
		})
	}
	writeTable(deps.Stdout, []string{"NAME", "TIER", "METHOD", "STATUS", "FAILURES", "LAST SUCCESS", "LAST ERROR"}, rows)
	return nil
}

// Run executes the sources enable command.
func (c *SourcesEnableCmd) Run(deps *Dependencies) error {
	sources, err := deps.Sources.FindSources(deps.Ctx, sigmatch.SourceFilter{Name: &c.Name})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}
	if len(sources) == 0 {
		err := sigmatch.Errorf(sigmatch.ENOTFOUND, "source %q not found", c.Name)
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	active := true
	if _, err := deps.Sources.UpdateSource(deps.Ctx, sources[0].ID, sigmatch.SourceUpdate{Active: &active}); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Enabled source %q\n", c.Name)
	return nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "disabled"
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateTime)
}
