// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Platform is the measurement platform a collection was assayed on.
type Platform int

const (
	P180 Platform = iota + 1
	NMR
)

func (p Platform) String() string {
	switch p {
	case P180:
		return "p180"
	case NMR:
		return "nmr"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// ParsePlatform returns the platform named by s ("p180" or "nmr").
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "p180":
		return P180, nil
	case "nmr":
		return NMR, nil
	}
	return 0, configErrorf("", "", "the platform should be p180 or nmr, not %q", s)
}

// RowKind distinguishes real participants from pooled QC samples.
type RowKind uint8

const (
	Participant RowKind = iota
	Pool
	// Reserved rows carry identifiers between the participant and
	// pool ranges. They are kept but never used in any statistic.
	Reserved
)

func (k RowKind) String() string {
	switch k {
	case Participant:
		return "participant"
	case Pool:
		return "pool"
	default:
		return "reserved"
	}
}

// Identifier ranges used by the p180 sample sheets.
const (
	participantIDLimit = 99999
	poolIDStart        = 999999
)

// KindOf classifies a row identifier. On NMR every row is a
// participant.
func KindOf(platform Platform, id int) RowKind {
	if platform != P180 {
		return Participant
	}
	switch {
	case id < participantIDLimit:
		return Participant
	case id >= poolIDStart:
		return Pool
	default:
		return Reserved
	}
}

const defaultPlateColumn = "Plate.Bar.Code"

type column struct {
	name    string
	analyte bool
	values  []float64 // analyte columns
	text    []string  // metadata columns
}

func (col *column) clone() *column {
	cp := &column{name: col.name, analyte: col.analyte}
	if col.analyte {
		cp.values = append([]float64(nil), col.values...)
	} else {
		cp.text = append([]string(nil), col.text...)
	}
	return cp
}

// Table holds one cohort: rows keyed by a (possibly repeated)
// participant id, analyte columns as float64 with NaN for missing
// values, and metadata columns as text.
type Table struct {
	Cohort      string
	Platform    Platform
	Family      Family
	PlateColumn string

	ids   []int
	kinds []RowKind
	cols  []*column
	index map[string]int
}

// NewTable returns an empty-column table with the given row ids. Row
// kinds are assigned from the platform's identifier convention.
func NewTable(cohort string, platform Platform, ids []int) *Table {
	t := &Table{
		Cohort:      cohort,
		Platform:    platform,
		Family:      FamilyOf(cohort),
		PlateColumn: defaultPlateColumn,
		ids:         append([]int(nil), ids...),
		kinds:       make([]RowKind, len(ids)),
		index:       map[string]int{},
	}
	for i, id := range ids {
		t.kinds[i] = KindOf(platform, id)
	}
	return t
}

func (t *Table) addColumn(col *column, n int) error {
	if n != len(t.ids) {
		return fmt.Errorf("column %q has %d values, table %s has %d rows", col.name, n, t.Cohort, len(t.ids))
	}
	if _, dup := t.index[col.name]; dup {
		return fmt.Errorf("duplicate column %q in %s", col.name, t.Cohort)
	}
	t.index[col.name] = len(t.cols)
	t.cols = append(t.cols, col)
	return nil
}

// AddAnalyte appends an analyte column.
func (t *Table) AddAnalyte(name string, values []float64) error {
	return t.addColumn(&column{name: name, analyte: true, values: values}, len(values))
}

// AddText appends a metadata column.
func (t *Table) AddText(name string, values []string) error {
	return t.addColumn(&column{name: name, text: values}, len(values))
}

func (t *Table) Len() int { return len(t.ids) }

func (t *Table) ID(row int) int { return t.ids[row] }

// IDs returns the backing id slice; callers must not modify it.
func (t *Table) IDs() []int { return t.ids }

func (t *Table) Kind(row int) RowKind { return t.kinds[row] }

// Eligible returns a mask of the participant rows, the rows every
// statistic is computed over.
func (t *Table) Eligible() []bool {
	mask := make([]bool, len(t.ids))
	for i, k := range t.kinds {
		mask[i] = k == Participant
	}
	return mask
}

func (t *Table) rowsOfKind(kind RowKind) []int {
	var rows []int
	for i, k := range t.kinds {
		if k == kind {
			rows = append(rows, i)
		}
	}
	return rows
}

// Columns returns all column names in table order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, col := range t.cols {
		names[i] = col.name
	}
	return names
}

// Analytes returns the analyte column names in table order.
func (t *Table) Analytes() []string {
	var names []string
	for _, col := range t.cols {
		if col.analyte {
			names = append(names, col.name)
		}
	}
	return names
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) IsAnalyte(name string) bool {
	i, ok := t.index[name]
	return ok && t.cols[i].analyte
}

// Values returns the backing slice of an analyte column (nil if there
// is no such analyte). Writes through the slice modify the table.
func (t *Table) Values(name string) []float64 {
	i, ok := t.index[name]
	if !ok || !t.cols[i].analyte {
		return nil
	}
	return t.cols[i].values
}

// Text returns the backing slice of a metadata column.
func (t *Table) Text(name string) []string {
	i, ok := t.index[name]
	if !ok || t.cols[i].analyte {
		return nil
	}
	return t.cols[i].text
}

// DropColumns removes the named columns. Unknown names are ignored.
func (t *Table) DropColumns(names ...string) {
	if len(names) == 0 {
		return
	}
	drop := map[string]bool{}
	for _, name := range names {
		drop[name] = true
	}
	kept := t.cols[:0]
	for _, col := range t.cols {
		if !drop[col.name] {
			kept = append(kept, col)
		}
	}
	for i := len(kept); i < len(t.cols); i++ {
		t.cols[i] = nil
	}
	t.cols = kept
	t.reindex()
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, col := range t.cols {
		t.index[col.name] = i
	}
}

// Filter keeps the rows where keep[row] is true, preserving order.
func (t *Table) Filter(keep []bool) {
	n := 0
	for row, ok := range keep {
		if !ok {
			continue
		}
		t.ids[n] = t.ids[row]
		t.kinds[n] = t.kinds[row]
		for _, col := range t.cols {
			if col.analyte {
				col.values[n] = col.values[row]
			} else {
				col.text[n] = col.text[row]
			}
		}
		n++
	}
	t.ids = t.ids[:n]
	t.kinds = t.kinds[:n]
	for _, col := range t.cols {
		if col.analyte {
			col.values = col.values[:n]
		} else {
			col.text = col.text[:n]
		}
	}
}

// permute reorders rows so that new row i is old row order[i].
func (t *Table) permute(order []int) {
	ids := make([]int, len(order))
	kinds := make([]RowKind, len(order))
	for i, row := range order {
		ids[i] = t.ids[row]
		kinds[i] = t.kinds[row]
	}
	t.ids, t.kinds = ids, kinds
	for _, col := range t.cols {
		if col.analyte {
			values := make([]float64, len(order))
			for i, row := range order {
				values[i] = col.values[row]
			}
			col.values = values
		} else {
			text := make([]string, len(order))
			for i, row := range order {
				text[i] = col.text[row]
			}
			col.text = text
		}
	}
}

// SortByID stably sorts rows by ascending id.
func (t *Table) SortByID() {
	order := make([]int, len(t.ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return t.ids[order[i]] < t.ids[order[j]] })
	t.permute(order)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	cp := &Table{
		Cohort:      t.Cohort,
		Platform:    t.Platform,
		Family:      t.Family,
		PlateColumn: t.PlateColumn,
		ids:         append([]int(nil), t.ids...),
		kinds:       append([]RowKind(nil), t.kinds...),
		cols:        make([]*column, len(t.cols)),
	}
	for i, col := range t.cols {
		cp.cols[i] = col.clone()
	}
	cp.reindex()
	return cp
}

// replicateGroups returns, for each participant id appearing on more
// than one participant row, the row numbers of its replicates in
// table order. Groups are ordered by first appearance.
func (t *Table) replicateGroups() (ids []int, groups [][]int) {
	byID := map[int][]int{}
	var order []int
	for row, id := range t.ids {
		if t.kinds[row] != Participant {
			continue
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = append(byID[id], row)
	}
	for _, id := range order {
		if len(byID[id]) > 1 {
			ids = append(ids, id)
			groups = append(groups, byID[id])
		}
	}
	return
}

func isMissing(x float64) bool { return math.IsNaN(x) }

// Collection maps cohort names to tables, remembering insertion order
// so every stage visits cohorts (and logs its reports) in a stable
// order.
type Collection struct {
	names  []string
	tables map[string]*Table
}

func NewCollection(tables ...*Table) *Collection {
	coll := &Collection{tables: map[string]*Table{}}
	for _, t := range tables {
		coll.Put(t)
	}
	return coll
}

// Put adds t under t.Cohort, replacing any table already stored under
// that name (in place, keeping its position).
func (coll *Collection) Put(t *Table) {
	if coll.tables == nil {
		coll.tables = map[string]*Table{}
	}
	if _, ok := coll.tables[t.Cohort]; !ok {
		coll.names = append(coll.names, t.Cohort)
	}
	coll.tables[t.Cohort] = t
}

func (coll *Collection) Get(name string) *Table { return coll.tables[name] }

func (coll *Collection) Len() int { return len(coll.names) }

// Names returns the cohort names in collection order.
func (coll *Collection) Names() []string {
	return append([]string(nil), coll.names...)
}

func (coll *Collection) Remove(name string) {
	if _, ok := coll.tables[name]; !ok {
		return
	}
	delete(coll.tables, name)
	for i, n := range coll.names {
		if n == name {
			coll.names = append(coll.names[:i], coll.names[i+1:]...)
			break
		}
	}
}

// Each calls fn for every table in collection order, stopping at the
// first error.
func (coll *Collection) Each(fn func(*Table) error) error {
	for _, name := range coll.names {
		if err := fn(coll.tables[name]); err != nil {
			return err
		}
	}
	return nil
}
