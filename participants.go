// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RemoveNonFasting keeps the rows of participants who were fasting at
// baseline (status 1). Rows whose id is absent from the fasting table
// are dropped or kept according to policy.
func RemoveNonFasting(coll *Collection, fasting *FastingTable, policy FastingPolicy) (*Collection, error) {
	const stage = "fasting"
	if fasting == nil {
		return coll, configErrorf(stage, "", "no fasting table supplied")
	}
	stageLogger(stage).Info("removing non-fasting participants")
	err := coll.Each(func(t *Table) error {
		keep := make([]bool, t.Len())
		var removed []Removal
		absent := 0
		for row, id := range t.IDs() {
			status, ok := fasting.Status(id)
			switch {
			case !ok:
				absent++
				keep[row] = policy == KeepAbsent
			default:
				keep[row] = status == 1
			}
			if !keep[row] {
				removed = append(removed, Removal{Name: strconv.Itoa(id), Value: status})
			}
		}
		stageLog(stage, t).Infof("%d rows have no baseline fasting record", absent)
		logRemovals(stage, t, "participants", "fasting", removed)
		t.Filter(keep)
		return nil
	})
	return coll, err
}

// NMR sample quality flags. A sample carrying any of them except the
// last, which is informational, is excluded.
var nmrQCTags = []string{
	"EDTA_PLASMA",
	"CITRATE_PLASMA",
	"LOW_ETHANOL",
	"MEDIUM_ETHANOL",
	"HIGH_ETHANOL",
	"ISOPROPYL_ALCOHOL",
	"N_METHYL_2_PYRROLIDONE",
	"POLYSACCHARIDES",
	"AMINOCAPROIC_ACID",
	"LOW_GLUCOSE",
	"HIGH_LACTATE",
	"HIGH_PYRUVATE",
	"LOW_GLUTAMINE_OR_HIGH_GLUTAMATE",
	"GLUCONOLACTONE",
	"LOW_PROTEIN",
	"UNEXPECTED_AMINO_ACID_SIGNALS",
	"UNIDENTIFIED_MACROMOLECULES",
	"UNIDENTIFIED_SMALL_MOLECULE_A",
	"UNIDENTIFIED_SMALL_MOLECULE_B",
	"UNIDENTIFIED_SMALL_MOLECULE_C",
	"BELOW_LIMIT_OF_QUANTIFICATION",
}

// DefaultQCExclusions lists, per p180 cohort, analytes whose instrument
// QC flags are systematically bad in that cohort. They are dropped as
// columns by RemoveQCTags.
var DefaultQCExclusions = map[string][]string{
	"ADNI1-UPLC":   {"DOPA"},
	"ADNI2GO-UPLC": {"DOPA", "Asp"},
}

// RemoveQCTags applies the instrument QC flags. On NMR, participant
// rows with any exclusion flag set are dropped. On p180, the analytes
// listed for each cohort in exclusions (DefaultQCExclusions if nil)
// are dropped.
func RemoveQCTags(coll *Collection, platform Platform, exclusions map[string][]string) (*Collection, error) {
	const stage = "qc-tags"
	stageLogger(stage).Info("removing samples and metabolites with bad QC tags")
	switch platform {
	case NMR:
		return coll, coll.Each(func(t *Table) error { return removeNMRTagged(stage, t) })
	case P180:
		if exclusions == nil {
			exclusions = DefaultQCExclusions
		}
		return coll, coll.Each(func(t *Table) error {
			var removed []Removal
			for _, name := range exclusions[t.Cohort] {
				if t.IsAnalyte(name) {
					removed = append(removed, Removal{Name: name, Value: 1})
				}
			}
			logRemovals(stage, t, "metabolites", "excluded", removed)
			t.DropColumns(removalNames(removed)...)
			return nil
		})
	}
	return coll, configErrorf(stage, "", "no valid metabolomics platform: %s", platform)
}

func removeNMRTagged(stage string, t *Table) error {
	tags := nmrQCTags[:len(nmrQCTags)-1]
	var absent []string
	for _, tag := range tags {
		if !t.HasColumn(tag) {
			absent = append(absent, tag)
		}
	}
	if len(absent) > 0 {
		return configErrorf(stage, t.Cohort, "missing QC tag columns %s", strings.Join(absent, ", "))
	}
	flags := make([]float64, t.Len())
	for _, tag := range tags {
		for row := range flags {
			flags[row] += tagValue(t, tag, row)
		}
	}
	keep := make([]bool, t.Len())
	var removed []Removal
	for row := range keep {
		keep[row] = t.Kind(row) != Participant || !(flags[row] > 0)
		if !keep[row] {
			removed = append(removed, Removal{Name: strconv.Itoa(t.ID(row)), Value: flags[row]})
		}
	}
	logRemovals(stage, t, "participants", "flags", removed)
	t.Filter(keep)
	return nil
}

// tagValue reads a 0/1 flag; blanks and unparseable cells count as 0.
func tagValue(t *Table, tag string, row int) float64 {
	if values := t.Values(tag); values != nil {
		if isMissing(values[row]) {
			return 0
		}
		return values[row]
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(t.Text(tag)[row]), 64)
	if err != nil || isMissing(x) {
		return 0
	}
	return x
}

// RemoveOutliers drops participants whose squared Mahalanobis distance
// from the cohort centroid exceeds the given quantile of a χ²
// distribution with (analytes − 1) degrees of freedom. Rows with a
// missing analyte are neither used for the centroid nor tested.
func RemoveOutliers(coll *Collection, quantile float64) (*Collection, error) {
	const stage = "outliers"
	stageLogger(stage).Infof("removing multivariate outliers beyond the %g χ² quantile", quantile)
	err := coll.Each(func(t *Table) error {
		return removeOutliers(stage, t, quantile)
	})
	return coll, err
}

func removeOutliers(stage string, t *Table, quantile float64) error {
	analytes := t.Analytes()
	p := len(analytes)
	if p < 2 {
		return integrityErrorf(stage, t.Cohort, "need at least 2 analytes for outlier detection, have %d", p)
	}
	var rows []int
	skipped := 0
	for _, row := range t.rowsOfKind(Participant) {
		complete := true
		for _, name := range analytes {
			if isMissing(t.Values(name)[row]) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, row)
		} else {
			skipped++
		}
	}
	if len(rows) <= p {
		return integrityErrorf(stage, t.Cohort, "%d complete participant rows is too few for %d analytes", len(rows), p)
	}
	data := mat.NewDense(len(rows), p, nil)
	for j, name := range analytes {
		values := t.Values(name)
		for i, row := range rows {
			data.Set(i, j, values[row])
		}
	}
	cov := mat.NewSymDense(p, nil)
	stat.CovarianceMatrix(cov, data, nil)
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok || chol.Cond() > 1e15 {
		return integrityErrorf(stage, t.Cohort, "covariance matrix of %d analytes is singular", p)
	}
	mean := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		mean.SetVec(j, stat.Mean(mat.Col(nil, j, data), nil))
	}

	threshold := chiSquareQuantile(quantile, float64(p-1))
	logger := stageLog(stage, t)
	logger.Infof("threshold %.4g (df=%d), %d rows with missing analytes not tested", threshold, p-1, skipped)

	keep := make([]bool, t.Len())
	for i := range keep {
		keep[i] = true
	}
	var removed []Removal
	for i, row := range rows {
		d := stat.Mahalanobis(data.RowView(i), mean, &chol)
		if d2 := d * d; d2 > threshold {
			keep[row] = false
			removed = append(removed, Removal{Name: strconv.Itoa(t.ID(row)), Value: d2})
		}
	}
	sort.SliceStable(removed, func(i, j int) bool { return removed[i].Value > removed[j].Value })
	logRemovals(stage, t, "participants", "D²", removed)
	t.Filter(keep)
	return nil
}
