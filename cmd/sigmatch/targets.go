package main

import (
	"fmt"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/yaml"
)

// Run executes the targets import command.
func (c *TargetsImportCmd) Run(deps *Dependencies) error {
	targets, err := yaml.LoadTargets(c.Path)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	for _, t := range targets {
		if err := deps.Targets.CreateTarget(deps.Ctx, t); err != nil {
			fmt.Fprintf(deps.Stderr, "error: target %q: %s\n", t.Name, sigmatch.ErrorMessage(err))
			return err
		}
	}

	fmt.Fprintf(deps.Stdout, "Imported %d targets. Run 'sigmatch targets embed' to embed them.\n", len(targets))
	return nil
}

// Run executes the targets list command.
func (c *TargetsListCmd) Run(deps *Dependencies) error {
	filter := sigmatch.TargetFilter{}
	if c.Org != "" {
		filter.OrganizationID = &c.Org
	}
	targets, err := deps.Targets.FindTargets(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	if len(targets) == 0 {
		fmt.Fprintln(deps.Stdout, "No targets found. Use 'sigmatch targets import' to add some.")
		return nil
	}

	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		embedded := "no"
		if len(t.Embedding) > 0 {
			embedded = "yes"
		}
		rows = append(rows, []string{
			t.OrganizationID,
			t.Name,
			string(t.TargetType),
			string(t.Priority),
			activeLabel(t.IsActive),
			embedded,
		})
	}
	writeTable(deps.Stdout, []string{"ORG", "NAME", "TYPE", "PRIORITY", "STATUS", "EMBEDDED"}, rows)
	return nil
}

// Run executes the targets embed command.
func (c *TargetsEmbedCmd) Run(deps *Dependencies) error {
	result, err := deps.Embedder.EmbedTargets(deps.Ctx, c.Org)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Embedded %d of %d targets (%d failed)\n", result.Processed, result.Total, result.Failed)
	return nil
}
