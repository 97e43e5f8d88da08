// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"math"
)

// Impute fills missing analyte values of participant rows. With a LOD
// table for the cohort, a missing cell becomes half the mean LOD of its
// plate; otherwise, and wherever the plate has no LOD for the analyte,
// it becomes half the minimum observed value of the analyte.
//
// lod is keyed by cohort name and may be nil.
func Impute(coll *Collection, platform Platform, lod map[string]*LODTable) (*Collection, error) {
	const stage = "impute"
	if lod != nil && platform != P180 {
		return coll, configErrorf(stage, "", "LOD imputation is only available on p180, not %s", platform)
	}
	if lod != nil {
		stageLogger(stage).Info("imputing missing values with half the limit of detection")
	} else {
		stageLogger(stage).Info("imputing missing values with half the minimum observed value")
	}
	err := coll.Each(func(t *Table) error {
		var table *LODTable
		if lod != nil {
			table = lod[t.Cohort]
			if table == nil {
				stageLog(stage, t).Warn("no LOD table for this cohort, using half minimum")
			}
		}
		return impute(stage, t, table)
	})
	return coll, err
}

func impute(stage string, t *Table, lod *LODTable) error {
	logger := stageLog(stage, t)
	var plates []string
	if lod != nil {
		plates = t.Text(t.PlateColumn)
		if plates == nil {
			return configErrorf(stage, t.Cohort, "no plate column %q for LOD lookup", t.PlateColumn)
		}
	}
	rows := t.rowsOfKind(Participant)
	filled, fallback := 0, 0
	for _, name := range t.Analytes() {
		values := t.Values(name)
		var missing []int
		for _, row := range rows {
			if isMissing(values[row]) {
				missing = append(missing, row)
			}
		}
		if len(missing) == 0 {
			continue
		}
		// computed before any cell of this column is filled
		halfMin := minOfRows(values, rows) / 2
		for _, row := range missing {
			if lod != nil {
				if x, ok := lod.Lookup(plates[row], name); ok {
					values[row] = x / 2
					filled++
					continue
				}
				fallback++
			}
			values[row] = halfMin
			if !math.IsNaN(halfMin) {
				filled++
			}
		}
		if math.IsNaN(halfMin) {
			logger.Warnf("%s has no observed values, left missing", name)
		}
	}
	if fallback > 0 {
		logger.Warnf("%d cells had no LOD for their plate and were imputed with half minimum", fallback)
	}
	logger.Infof("imputed %d missing values", filled)
	return nil
}

// minOfRows is the minimum non-missing value at the given rows, NaN if
// there is none.
func minOfRows(values []float64, rows []int) float64 {
	min := math.NaN()
	for _, row := range rows {
		if x := values[row]; !isMissing(x) && (math.IsNaN(min) || x < min) {
			min = x
		}
	}
	return min
}
