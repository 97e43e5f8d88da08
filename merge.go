// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"sort"
	"strings"
)

// MergeCohorts joins the analyte columns of the named cohorts into a
// single new cohort called name. Only participants present in every
// cohort are kept. Analyte names occurring in more than one cohort get
// the cohort's suffix (the part of its name after the last "-")
// appended. The merged cohorts are removed from the collection.
func MergeCohorts(coll *Collection, name string, cohorts []string) (*Collection, error) {
	const stage = "merge"
	if len(cohorts) < 2 {
		return coll, configErrorf(stage, "", "merging needs at least two cohorts, got %d", len(cohorts))
	}
	if coll.Get(name) != nil && !contains(cohorts, name) {
		return coll, configErrorf(stage, name, "a cohort named %q already exists", name)
	}
	tables := make([]*Table, len(cohorts))
	for i, cohort := range cohorts {
		tables[i] = coll.Get(cohort)
		if tables[i] == nil {
			return coll, configErrorf(stage, cohort, "no such cohort")
		}
	}
	stageLogger(stage).Infof("merging %s into %s", strings.Join(cohorts, ", "), name)

	// row of each participant id, per cohort
	rowOf := make([]map[int]int, len(tables))
	for i, t := range tables {
		rowOf[i] = map[int]int{}
		for _, row := range t.rowsOfKind(Participant) {
			id := t.ID(row)
			if _, dup := rowOf[i][id]; dup {
				return coll, integrityErrorf(stage, t.Cohort, "participant %d appears more than once, consolidate replicates before merging", id)
			}
			rowOf[i][id] = row
		}
	}
	var ids []int
	for id := range rowOf[0] {
		shared := true
		for _, m := range rowOf[1:] {
			if _, ok := m[id]; !ok {
				shared = false
				break
			}
		}
		if shared {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	seen := map[string]int{}
	for _, t := range tables {
		for _, analyte := range t.Analytes() {
			seen[analyte]++
		}
	}
	merged := NewTable(name, tables[0].Platform, ids)
	for i, t := range tables {
		suffix := "_" + t.Cohort[strings.LastIndex(t.Cohort, "-")+1:]
		for _, analyte := range t.Analytes() {
			src := t.Values(analyte)
			values := make([]float64, len(ids))
			for k, id := range ids {
				values[k] = src[rowOf[i][id]]
			}
			colname := analyte
			if seen[analyte] > 1 {
				colname += suffix
			}
			if err := merged.AddAnalyte(colname, values); err != nil {
				return coll, integrityErrorf(stage, name, "%s", err)
			}
		}
		stageLog(stage, t).Infof("%d of %d participants are shared with the other cohorts", len(ids), len(rowOf[i]))
	}
	for _, cohort := range cohorts {
		coll.Remove(cohort)
	}
	coll.Put(merged)
	return coll, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
