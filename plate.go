// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"math"
)

// CorrectPlates removes inter-plate batch effects. For each analyte,
// participant values on a plate are divided by the ratio of that
// plate's pool-sample mean to the cohort-wide pool-sample mean. Pool
// rows themselves are left as they are.
func CorrectPlates(coll *Collection, platform Platform) (*Collection, error) {
	const stage = "plate-correction"
	if err := requireP180(stage, platform); err != nil {
		return coll, err
	}
	stageLogger(stage).Info("applying a cross-plate correction")
	err := coll.Each(func(t *Table) error {
		return correctPlates(stage, t)
	})
	return coll, err
}

func correctPlates(stage string, t *Table) error {
	plates := t.Text(t.PlateColumn)
	if plates == nil {
		return configErrorf(stage, t.Cohort, "no plate column %q", t.PlateColumn)
	}
	pools := t.rowsOfKind(Pool)
	poolsOnPlate := map[string][]int{}
	for _, row := range pools {
		poolsOnPlate[plates[row]] = append(poolsOnPlate[plates[row]], row)
	}
	participantsOnPlate := map[string][]int{}
	var plateOrder []string
	for _, row := range t.rowsOfKind(Participant) {
		plate := plates[row]
		if _, seen := participantsOnPlate[plate]; !seen {
			plateOrder = append(plateOrder, plate)
		}
		participantsOnPlate[plate] = append(participantsOnPlate[plate], row)
	}
	for _, plate := range plateOrder {
		if len(poolsOnPlate[plate]) == 0 {
			return integrityErrorf(stage, t.Cohort, "plate %q has %d participant rows but no pool samples, correction factor is undefined", plate, len(participantsOnPlate[plate]))
		}
	}
	logger := stageLog(stage, t)
	logger.Infof("correcting %d plates using %d pool samples", len(plateOrder), len(pools))
	for _, name := range t.Analytes() {
		values := t.Values(name)
		global := meanOfRows(values, pools)
		for _, plate := range plateOrder {
			factor := meanOfRows(values, poolsOnPlate[plate]) / global
			if math.IsNaN(factor) || math.IsInf(factor, 0) || factor == 0 {
				logger.Warnf("%s: correction factor on plate %q is %g, leaving values uncorrected", name, plate, factor)
				continue
			}
			for _, row := range participantsOnPlate[plate] {
				values[row] = values[row] / factor
			}
		}
	}
	return nil
}

// meanOfRows is the mean of the non-missing values at the given rows,
// NaN if there are none.
func meanOfRows(values []float64, rows []int) float64 {
	var sum float64
	var n int
	for _, row := range rows {
		if x := values[row]; !isMissing(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
