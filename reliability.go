// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"math"

	"github.com/metabo-qc/metaboqc/icc"
	"gonum.org/v1/gonum/stat"
)

// requireP180 rejects stages that need plate-based duplicate
// measurements on a platform that has none.
func requireP180(stage string, platform Platform) error {
	if platform != P180 {
		return configErrorf(stage, "", "the platform should be p180 only, not %s", platform)
	}
	return nil
}

// RemoveCV drops analytes whose average coefficient of variation
// across replicated participants is greater than cutoff.
func RemoveCV(coll *Collection, platform Platform, cutoff float64) (*Collection, error) {
	const stage = "cv"
	if err := requireP180(stage, platform); err != nil {
		return coll, err
	}
	stageLogger(stage).Infof("removing metabolites with CV values greater than %g", cutoff)
	err := coll.Each(func(t *Table) error {
		_, groups := t.replicateGroups()
		var removed []Removal
		for _, name := range t.Analytes() {
			cv := replicateCV(t.Values(name), groups)
			if cv > cutoff {
				removed = append(removed, Removal{Name: name, Value: cv})
			}
		}
		logRemovals(stage, t, "metabolites", "CV", removed)
		t.DropColumns(removalNames(removed)...)
		return nil
	})
	return coll, err
}

// replicateCV averages sd/mean over replicate groups. Groups with
// fewer than two observed values contribute nothing; the result is NaN
// when no group contributes.
func replicateCV(values []float64, groups [][]int) float64 {
	var sum float64
	var n int
	buf := make([]float64, 0, 4)
	for _, rows := range groups {
		buf = buf[:0]
		for _, row := range rows {
			if !isMissing(values[row]) {
				buf = append(buf, values[row])
			}
		}
		if len(buf) < 2 {
			continue
		}
		mean, sd := stat.MeanStdDev(buf, nil)
		cv := sd / mean
		if math.IsNaN(cv) {
			continue
		}
		sum += cv
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// RemoveICC drops analytes whose ICC(2,1) across replicated
// participants is lower than cutoff.
func RemoveICC(coll *Collection, platform Platform, cutoff float64) (*Collection, error) {
	const stage = "icc"
	if err := requireP180(stage, platform); err != nil {
		return coll, err
	}
	stageLogger(stage).Infof("removing metabolites with ICC values lower than %g", cutoff)
	err := coll.Each(func(t *Table) error {
		ids, groups := t.replicateGroups()
		var removed []Removal
		for _, name := range t.Analytes() {
			res := icc.Compute(replicateRatings(t.Values(name), ids, groups))
			if res.ICC < cutoff {
				removed = append(removed, Removal{Name: name, Value: res.ICC})
			}
		}
		logRemovals(stage, t, "metabolites", "ICC", removed)
		t.DropColumns(removalNames(removed)...)
		return nil
	})
	return coll, err
}

// replicateRatings numbers the replicates of each participant 1, 2,
// 3... in table order and uses them as raters.
func replicateRatings(values []float64, ids []int, groups [][]int) []icc.Rating {
	var ratings []icc.Rating
	for g, rows := range groups {
		for rater, row := range rows {
			ratings = append(ratings, icc.Rating{
				Target: ids[g],
				Rater:  rater + 1,
				Value:  values[row],
			})
		}
	}
	return ratings
}
