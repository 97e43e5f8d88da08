// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Log2 replaces every participant value with its base-2 logarithm.
// Values must be positive; zero or negative values are an error (run
// Impute first if the data contains censored zeros).
func Log2(coll *Collection) (*Collection, error) {
	const stage = "log2"
	stageLogger(stage).Info("log2 transforming metabolite values")
	err := coll.Each(func(t *Table) error {
		rows := t.rowsOfKind(Participant)
		analytes := t.Analytes()
		for _, name := range analytes {
			values := t.Values(name)
			for _, row := range rows {
				if x := values[row]; x <= 0 {
					return integrityErrorf(stage, t.Cohort, "%s has non-positive value %g for participant %d", name, x, t.ID(row))
				}
			}
		}
		for _, name := range analytes {
			values := t.Values(name)
			for _, row := range rows {
				values[row] = math.Log2(values[row])
			}
		}
		return nil
	})
	return coll, err
}

// ZScore standardizes each analyte over the observed participant
// values. Missing values stay missing.
func ZScore(coll *Collection) (*Collection, error) {
	const stage = "zscore"
	stageLogger(stage).Info("z-scoring metabolite values")
	err := coll.Each(func(t *Table) error {
		rows := t.rowsOfKind(Participant)
		for _, name := range t.Analytes() {
			values := t.Values(name)
			mean, std := observedMeanStdDev(values, rows)
			if !(std > 0) {
				stageLog(stage, t).Warnf("%s has standard deviation %g, left unscaled", name, std)
				continue
			}
			for _, row := range rows {
				values[row] = (values[row] - mean) / std
			}
		}
		return nil
	})
	return coll, err
}

// Winsorize caps participant values lying more than sds standard
// deviations from the analyte mean at exactly that bound.
func Winsorize(coll *Collection, sds float64) (*Collection, error) {
	const stage = "winsorize"
	stageLogger(stage).Infof("winsorizing values beyond %g standard deviations", sds)
	err := coll.Each(func(t *Table) error {
		rows := t.rowsOfKind(Participant)
		capped := 0
		for _, name := range t.Analytes() {
			values := t.Values(name)
			mean, std := observedMeanStdDev(values, rows)
			if math.IsNaN(std) {
				continue
			}
			lo, hi := mean-sds*std, mean+sds*std
			for _, row := range rows {
				switch x := values[row]; {
				case x > hi:
					values[row] = hi
					capped++
				case x < lo:
					values[row] = lo
					capped++
				}
			}
		}
		stageLog(stage, t).Infof("%d values were capped", capped)
		return nil
	})
	return coll, err
}

// observedMeanStdDev returns the mean and sample standard deviation of
// the non-missing values at rows.
func observedMeanStdDev(values []float64, rows []int) (mean, std float64) {
	observed := make([]float64, 0, len(rows))
	for _, row := range rows {
		if !isMissing(values[row]) {
			observed = append(observed, values[row])
		}
	}
	if len(observed) < 2 {
		return math.NaN(), math.NaN()
	}
	return stat.MeanStdDev(observed, nil)
}
