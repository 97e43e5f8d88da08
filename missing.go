// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"strconv"
)

// RemoveMissingMetabolites drops, from every cohort, the analytes
// whose fraction of missing values among participant rows is greater
// than cutoff.
func RemoveMissingMetabolites(coll *Collection, cutoff float64) (*Collection, error) {
	const stage = "missing-metabolites"
	log := stageLogger(stage)
	log.Infof("removing metabolites with missing data greater than %g", cutoff)
	err := coll.Each(func(t *Table) error {
		removed := missingMetabolites(t, cutoff)
		logRemovals(stage, t, "metabolites", "missing", removed)
		t.DropColumns(removalNames(removed)...)
		return nil
	})
	return coll, err
}

func missingMetabolites(t *Table, cutoff float64) []Removal {
	rows := t.rowsOfKind(Participant)
	if len(rows) == 0 {
		return nil
	}
	var removed []Removal
	for _, name := range t.Analytes() {
		values := t.Values(name)
		missing := 0
		for _, row := range rows {
			if isMissing(values[row]) {
				missing++
			}
		}
		frac := float64(missing) / float64(len(rows))
		if frac > cutoff {
			removed = append(removed, Removal{Name: name, Value: frac})
		}
	}
	return removed
}

// RemoveMissingParticipants drops participant rows whose fraction of
// missing analyte values is greater than cutoff. Pool and reserved
// rows are not considered.
func RemoveMissingParticipants(coll *Collection, cutoff float64) (*Collection, error) {
	const stage = "missing-participants"
	log := stageLogger(stage)
	log.Infof("removing participants with missing data greater than %g", cutoff)
	err := coll.Each(func(t *Table) error {
		analytes := t.Analytes()
		if len(analytes) == 0 {
			logRemovals(stage, t, "participants", "missing", nil)
			return nil
		}
		missing := make([]int, t.Len())
		for _, name := range analytes {
			for row, x := range t.Values(name) {
				if isMissing(x) {
					missing[row]++
				}
			}
		}
		keep := make([]bool, t.Len())
		var removed []Removal
		for row := range keep {
			keep[row] = true
			if t.Kind(row) != Participant {
				continue
			}
			frac := float64(missing[row]) / float64(len(analytes))
			if frac > cutoff {
				keep[row] = false
				removed = append(removed, Removal{Name: strconv.Itoa(t.ID(row)), Value: frac})
			}
		}
		logRemovals(stage, t, "participants", "missing", removed)
		t.Filter(keep)
		return nil
	})
	return coll, err
}
