// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the YAML description of a pipeline run.
type Config struct {
	Platform      string              `yaml:"platform"`
	Threads       int                 `yaml:"threads"`
	FastingPolicy string              `yaml:"fasting_policy"`
	QCExclusions  map[string][]string `yaml:"qc_exclusions"`
	Steps         []Step              `yaml:"steps"`
}

// Step is one stage invocation. Parameters that do not apply to the
// stage are ignored; unset parameters take the stage default.
type Step struct {
	Stage    string   `yaml:"stage"`
	Cutoff   *float64 `yaml:"cutoff,omitempty"`
	Quantile *float64 `yaml:"quantile,omitempty"`
	SDs      *float64 `yaml:"sds,omitempty"`
	Name     string   `yaml:"name,omitempty"`
	Cohorts  []string `yaml:"cohorts,omitempty"`
}

// Stage defaults.
const (
	defaultMissingCutoff = 0.2
	defaultCVCutoff      = 0.2
	defaultICCCutoff     = 0.65
	defaultQuantile      = 0.999
	defaultSDs           = 3
)

// LoadConfig reads a pipeline configuration file. Unknown keys are an
// error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, &ConfigurationError{Msg: "parsing " + path, Err: err}
	}
	return &cfg, nil
}

// DefaultConfig returns the standard stage sequence for a platform.
func DefaultConfig(platform Platform) *Config {
	cfg := &Config{Platform: platform.String(), Threads: 1}
	switch platform {
	case P180:
		cfg.Steps = []Step{
			{Stage: "missing-metabolites"},
			{Stage: "missing-participants"},
			{Stage: "cv"},
			{Stage: "icc"},
			{Stage: "plate-correction"},
			{Stage: "consolidate"},
			{Stage: "fasting"},
			{Stage: "qc-tags"},
			{Stage: "impute"},
			{Stage: "log2"},
			{Stage: "zscore"},
			{Stage: "winsorize"},
			{Stage: "outliers"},
			{Stage: "residualize"},
		}
	case NMR:
		cfg.Steps = []Step{
			{Stage: "missing-metabolites"},
			{Stage: "missing-participants"},
			{Stage: "fasting"},
			{Stage: "qc-tags"},
			{Stage: "impute"},
			{Stage: "zscore"},
			{Stage: "winsorize"},
			{Stage: "residualize"},
		}
	}
	return cfg
}

// Needs reports which side tables the configured steps require.
func (cfg *Config) Needs() (lod, fasting, covariates bool) {
	for _, step := range cfg.Steps {
		switch step.Stage {
		case "impute":
			lod = true
		case "fasting":
			fasting = true
		case "residualize":
			covariates = true
		}
	}
	return
}

func (step Step) String() string {
	s := step.Stage
	switch {
	case step.Cutoff != nil:
		s += fmt.Sprintf("(cutoff=%g)", *step.Cutoff)
	case step.Quantile != nil:
		s += fmt.Sprintf("(quantile=%g)", *step.Quantile)
	case step.SDs != nil:
		s += fmt.Sprintf("(sds=%g)", *step.SDs)
	case step.Name != "":
		s += fmt.Sprintf("(%s=%v)", step.Name, step.Cohorts)
	}
	return s
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
