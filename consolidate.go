// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

// ConsolidateReplicates collapses the replicate rows of each
// participant into one row holding the per-analyte mean. Metadata
// columns come from the first replicate. The table is then sorted by
// id.
func ConsolidateReplicates(coll *Collection) (*Collection, error) {
	const stage = "consolidate"
	stageLogger(stage).Info("consolidating replicates")
	err := coll.Each(func(t *Table) error {
		ids, groups := t.replicateGroups()
		keep := make([]bool, t.Len())
		for i := range keep {
			keep[i] = true
		}
		analytes := t.Analytes()
		collapsed := 0
		for _, rows := range groups {
			first := rows[0]
			for _, name := range analytes {
				values := t.Values(name)
				values[first] = meanOfRows(values, rows)
			}
			for _, row := range rows[1:] {
				keep[row] = false
				collapsed++
			}
		}
		stageLog(stage, t).Infof("%d participants had replicates, %d rows merged into their first replicate", len(ids), collapsed)
		t.Filter(keep)
		t.SortByID()
		return nil
	})
	return coll, err
}
