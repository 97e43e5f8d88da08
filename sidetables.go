// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"fmt"
	"math"
	"sort"
)

// FastingRecord is one row of the fasting questionnaire.
type FastingRecord struct {
	ID     int
	Visit  string
	Status float64 // 1 = fasting; NaN when not recorded
}

// FastingTable maps participant id to baseline fasting status.
type FastingTable struct {
	status map[int]float64
}

// NewFastingTable keeps baseline ("bl") records only. When a
// participant has several baseline records the largest status wins.
func NewFastingTable(records []FastingRecord) *FastingTable {
	ft := &FastingTable{status: map[int]float64{}}
	for _, rec := range records {
		if rec.Visit != "bl" {
			continue
		}
		// NaN never replaces a recorded status
		if old, ok := ft.status[rec.ID]; !ok || math.IsNaN(old) || rec.Status > old {
			ft.status[rec.ID] = rec.Status
		}
	}
	return ft
}

func (ft *FastingTable) Status(id int) (float64, bool) {
	s, ok := ft.status[id]
	return s, ok
}

func (ft *FastingTable) Len() int { return len(ft.status) }

// FastingPolicy decides what happens to rows whose id does not appear
// in the fasting table.
type FastingPolicy int

const (
	DropAbsent FastingPolicy = iota
	KeepAbsent
)

func ParseFastingPolicy(s string) (FastingPolicy, error) {
	switch s {
	case "", "drop":
		return DropAbsent, nil
	case "keep":
		return KeepAbsent, nil
	}
	return 0, configErrorf("fasting", "", "unknown fasting policy %q (want drop or keep)", s)
}

// CovariateTable is a participant × covariate matrix of 0/1
// indicators (for example medication classes at baseline).
type CovariateTable struct {
	Names []string
	ids   []int
	rows  map[int][]float64
}

func NewCovariateTable(names []string) *CovariateTable {
	return &CovariateTable{Names: append([]string(nil), names...), rows: map[int][]float64{}}
}

// Set stores the covariate values of one participant, replacing any
// previous row for that id.
func (ct *CovariateTable) Set(id int, values []float64) error {
	if len(values) != len(ct.Names) {
		return fmt.Errorf("covariate row for %d has %d values, want %d", id, len(values), len(ct.Names))
	}
	if _, ok := ct.rows[id]; !ok {
		ct.ids = append(ct.ids, id)
	}
	ct.rows[id] = append([]float64(nil), values...)
	return nil
}

func (ct *CovariateTable) Row(id int) ([]float64, bool) {
	row, ok := ct.rows[id]
	return row, ok
}

// IDs returns the participant ids in ascending order.
func (ct *CovariateTable) IDs() []int {
	ids := append([]int(nil), ct.ids...)
	sort.Ints(ids)
	return ids
}

// LODRecord holds the limits of detection measured on one plate.
// An empty Plate applies to every plate.
type LODRecord struct {
	Plate  string
	Values map[string]float64
}

// LODTable holds the limit-of-detection records of one cohort.
type LODTable struct {
	Records []LODRecord
}

// Lookup returns the mean LOD recorded for the analyte on the plate,
// and false if there is none.
func (lt *LODTable) Lookup(plate, analyte string) (float64, bool) {
	if lt == nil {
		return 0, false
	}
	var sum float64
	var n int
	for _, rec := range lt.Records {
		if rec.Plate != "" && rec.Plate != plate {
			continue
		}
		if x, ok := rec.Values[analyte]; ok && !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
