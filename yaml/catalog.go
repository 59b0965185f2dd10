package yaml

import (
	"fmt"
	"io"
	"os"

	"github.com/fwojciec/sigmatch"
	"gopkg.in/yaml.v3"
)

type sourceCatalog struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	Name         string   `yaml:"name"`
	URL          string   `yaml:"url"`
	Query        string   `yaml:"query"`
	Tier         int      `yaml:"tier"`
	Method       string   `yaml:"method"`
	IndustryTags []string `yaml:"industryTags"`
	Active       *bool    `yaml:"active"`
}

type targetCatalog struct {
	Targets []targetEntry `yaml:"targets"`
}

type targetEntry struct {
	Organization string `yaml:"organization"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Priority     string `yaml:"priority"`
	Description  string `yaml:"description"`
	Active       *bool  `yaml:"active"`
}

// LoadSources reads a source catalog file.
func LoadSources(path string) ([]*sigmatch.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeSources(f)
}

// DecodeSources parses a source catalog. Entries default to active, tier 3
// and feed discovery. Every entry is validated.
func DecodeSources(r io.Reader) ([]*sigmatch.Source, error) {
	var catalog sourceCatalog
	if err := yaml.NewDecoder(r).Decode(&catalog); err != nil && err != io.EOF {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "parse source catalog: %v", err)
	}

	sources := make([]*sigmatch.Source, 0, len(catalog.Sources))
	for i, e := range catalog.Sources {
		source := &sigmatch.Source{
			Name:            e.Name,
			URL:             e.URL,
			Query:           e.Query,
			Tier:            e.Tier,
			IndustryTags:    e.IndustryTags,
			DiscoveryMethod: sigmatch.DiscoveryMethod(e.Method),
			Active:          e.Active == nil || *e.Active,
		}
		if source.Tier == 0 {
			source.Tier = sigmatch.TierTertiary
		}
		if source.DiscoveryMethod == "" {
			source.DiscoveryMethod = sigmatch.DiscoveryFeed
		}
		if err := source.Validate(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// LoadTargets reads a target catalog file.
func LoadTargets(path string) ([]*sigmatch.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeTargets(f)
}

// DecodeTargets parses a target catalog. Entries default to active and
// medium priority.
func DecodeTargets(r io.Reader) ([]*sigmatch.Target, error) {
	var catalog targetCatalog
	if err := yaml.NewDecoder(r).Decode(&catalog); err != nil && err != io.EOF {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "parse target catalog: %v", err)
	}

	targets := make([]*sigmatch.Target, 0, len(catalog.Targets))
	for i, e := range catalog.Targets {
		target := &sigmatch.Target{
			OrganizationID: e.Organization,
			Name:           e.Name,
			Description:    e.Description,
			TargetType:     sigmatch.TargetType(e.Type),
			Priority:       sigmatch.TargetPriority(e.Priority),
			IsActive:       e.Active == nil || *e.Active,
		}
		if target.Priority == "" {
			target.Priority = sigmatch.PriorityMedium
		}
		if err := target.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i+1, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}
