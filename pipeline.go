// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type stageFunc func(*Collection) (*Collection, error)

// Pipeline applies a sequence of QC stages to a collection.
type Pipeline struct {
	Platform      Platform
	Steps         []Step
	Threads       int
	FastingPolicy FastingPolicy
	QCExclusions  map[string][]string

	// Side tables, read-only once the run starts. A stage that
	// needs a missing one fails with a ConfigurationError.
	LOD        map[string]*LODTable
	Fasting    *FastingTable
	Covariates *CovariateTable
}

// NewPipeline validates cfg and returns the pipeline it describes.
// Side tables are attached by the caller.
func NewPipeline(cfg *Config) (*Pipeline, error) {
	platform, err := ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}
	policy, err := ParseFastingPolicy(cfg.FastingPolicy)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		Platform:      platform,
		Steps:         cfg.Steps,
		Threads:       cfg.Threads,
		FastingPolicy: policy,
		QCExclusions:  cfg.QCExclusions,
	}
	for _, step := range p.Steps {
		if _, _, err := p.stage(step); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// stage returns the function implementing step, and whether it can
// run on each cohort independently.
func (p *Pipeline) stage(step Step) (stageFunc, bool, error) {
	var fn stageFunc
	switch step.Stage {
	case "missing-metabolites":
		cutoff := valueOr(step.Cutoff, defaultMissingCutoff)
		fn = func(coll *Collection) (*Collection, error) { return RemoveMissingMetabolites(coll, cutoff) }
	case "missing-participants":
		cutoff := valueOr(step.Cutoff, defaultMissingCutoff)
		fn = func(coll *Collection) (*Collection, error) { return RemoveMissingParticipants(coll, cutoff) }
	case "cv":
		cutoff := valueOr(step.Cutoff, defaultCVCutoff)
		fn = func(coll *Collection) (*Collection, error) { return RemoveCV(coll, p.Platform, cutoff) }
	case "icc":
		cutoff := valueOr(step.Cutoff, defaultICCCutoff)
		fn = func(coll *Collection) (*Collection, error) { return RemoveICC(coll, p.Platform, cutoff) }
	case "plate-correction":
		fn = func(coll *Collection) (*Collection, error) { return CorrectPlates(coll, p.Platform) }
	case "consolidate":
		fn = ConsolidateReplicates
	case "fasting":
		fn = func(coll *Collection) (*Collection, error) { return RemoveNonFasting(coll, p.Fasting, p.FastingPolicy) }
	case "qc-tags":
		fn = func(coll *Collection) (*Collection, error) { return RemoveQCTags(coll, p.Platform, p.QCExclusions) }
	case "outliers":
		quantile := valueOr(step.Quantile, defaultQuantile)
		if !(quantile > 0 && quantile < 1) {
			return nil, false, configErrorf(step.Stage, "", "quantile %g is not between 0 and 1", quantile)
		}
		fn = func(coll *Collection) (*Collection, error) { return RemoveOutliers(coll, quantile) }
	case "impute":
		fn = func(coll *Collection) (*Collection, error) { return Impute(coll, p.Platform, p.LOD) }
	case "log2":
		fn = Log2
	case "zscore":
		fn = ZScore
	case "winsorize":
		sds := valueOr(step.SDs, defaultSDs)
		if !(sds > 0) {
			return nil, false, configErrorf(step.Stage, "", "sds must be positive, not %g", sds)
		}
		fn = func(coll *Collection) (*Collection, error) { return Winsorize(coll, sds) }
	case "residualize":
		fn = func(coll *Collection) (*Collection, error) { return Residualize(coll, p.Covariates) }
	case "merge":
		if step.Name == "" {
			return nil, false, configErrorf(step.Stage, "", "merge step needs a name for the merged cohort")
		}
		name, cohorts := step.Name, step.Cohorts
		return func(coll *Collection) (*Collection, error) { return MergeCohorts(coll, name, cohorts) }, false, nil
	default:
		return nil, false, configErrorf(step.Stage, "", "unknown stage %q", step.Stage)
	}
	return fn, true, nil
}

// Run applies the steps in order. The collection is owned by the
// pipeline until Run returns; the first error aborts the run.
func (p *Pipeline) Run(ctx context.Context, coll *Collection) (*Collection, error) {
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return coll, err
		}
		fn, perCohort, err := p.stage(step)
		if err != nil {
			return coll, err
		}
		log.Printf("step %d/%d: %s", i+1, len(p.Steps), step)
		t0 := time.Now()
		if perCohort && p.Threads > 1 && coll.Len() > 1 {
			coll, err = runPerCohort(fn, coll, p.Threads)
		} else {
			coll, err = fn(coll)
		}
		if err != nil {
			return coll, fmt.Errorf("stage %s: %w", step.Stage, err)
		}
		log.Debugf("step %d/%d: %s done in %s", i+1, len(p.Steps), step.Stage, time.Since(t0))
	}
	return coll, nil
}

// runPerCohort applies fn to a one-table collection per cohort, up to
// threads at a time, and reassembles the results in the original
// cohort order.
func runPerCohort(fn stageFunc, coll *Collection, threads int) (*Collection, error) {
	names := coll.Names()
	results := make([]*Collection, len(names))
	thr := throttle{Max: threads}
	for i, name := range names {
		i, t := i, coll.Get(name)
		thr.Go(func() error {
			res, err := fn(NewCollection(t))
			results[i] = res
			return err
		})
	}
	if err := thr.Wait(); err != nil {
		return coll, err
	}
	out := NewCollection()
	for _, res := range results {
		res.Each(func(t *Table) error {
			out.Put(t)
			return nil
		})
	}
	return out, nil
}
