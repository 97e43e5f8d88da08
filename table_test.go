// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"errors"

	"gopkg.in/check.v1"
)

type tableSuite struct{}

var _ = check.Suite(&tableSuite{})

func (s *tableSuite) TestKindOf(c *check.C) {
	c.Check(KindOf(P180, 1), check.Equals, Participant)
	c.Check(KindOf(P180, 99998), check.Equals, Participant)
	c.Check(KindOf(P180, 99999), check.Equals, Reserved)
	c.Check(KindOf(P180, 999998), check.Equals, Reserved)
	c.Check(KindOf(P180, 999999), check.Equals, Pool)
	c.Check(KindOf(P180, 1000003), check.Equals, Pool)
	c.Check(KindOf(NMR, 1000003), check.Equals, Participant)
}

func (s *tableSuite) TestParsePlatform(c *check.C) {
	p, err := ParsePlatform("P180")
	c.Check(err, check.IsNil)
	c.Check(p, check.Equals, P180)
	p, err = ParsePlatform("nmr")
	c.Check(err, check.IsNil)
	c.Check(p, check.Equals, NMR)
	_, err = ParsePlatform("lcms")
	var cerr *ConfigurationError
	c.Check(errors.As(err, &cerr), check.Equals, true)
}

func (s *tableSuite) TestFilterAndSort(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{5, 3, 999999, 3, 1},
		analyte("C0", 50, 30, 9, 31, 10),
		text("Plate.Bar.Code", "p1", "p2", "p1", "p3", "p1"))
	c.Check(t.Eligible(), check.DeepEquals, []bool{true, true, false, true, true})

	t.SortByID()
	c.Check(t.IDs(), check.DeepEquals, []int{1, 3, 3, 5, 999999})
	// stable: the two rows of participant 3 keep their order
	c.Check(t.Values("C0"), check.DeepEquals, []float64{10, 30, 31, 50, 9})
	c.Check(t.Text("Plate.Bar.Code"), check.DeepEquals, []string{"p1", "p2", "p3", "p1", "p1"})
	c.Check(t.Kind(4), check.Equals, Pool)

	t.Filter([]bool{false, true, false, true, true})
	c.Check(t.IDs(), check.DeepEquals, []int{3, 5, 999999})
	c.Check(t.Values("C0"), check.DeepEquals, []float64{30, 50, 9})
	c.Check(t.Text("Plate.Bar.Code"), check.DeepEquals, []string{"p2", "p1", "p1"})
	c.Check(t.Kind(2), check.Equals, Pool)
}

func (s *tableSuite) TestColumns(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{1, 2},
		text("Plate.Bar.Code", "p1", "p1"),
		analyte("C0", 1, 2),
		analyte("C2", 3, 4),
		analyte("C3", 5, 6))
	c.Check(t.Columns(), check.DeepEquals, []string{"Plate.Bar.Code", "C0", "C2", "C3"})
	c.Check(t.Analytes(), check.DeepEquals, []string{"C0", "C2", "C3"})
	c.Check(t.IsAnalyte("Plate.Bar.Code"), check.Equals, false)
	c.Check(t.Values("Plate.Bar.Code"), check.IsNil)
	c.Check(t.Text("C0"), check.IsNil)

	c.Check(t.AddAnalyte("C0", []float64{1, 2}), check.NotNil)
	c.Check(t.AddAnalyte("C4", []float64{1}), check.NotNil)

	t.DropColumns("C2", "nonexistent")
	c.Check(t.Analytes(), check.DeepEquals, []string{"C0", "C3"})
	c.Check(t.Values("C3"), check.DeepEquals, []float64{5, 6})
	c.Check(t.HasColumn("C2"), check.Equals, false)
}

func (s *tableSuite) TestClone(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{1, 2}, analyte("C0", 1, 2))
	cp := t.Clone()
	cp.Values("C0")[0] = 100
	cp.Filter([]bool{false, true})
	c.Check(t.Values("C0"), check.DeepEquals, []float64{1, 2})
	c.Check(t.Len(), check.Equals, 2)
	c.Check(cp.IDs(), check.DeepEquals, []int{2})
}

func (s *tableSuite) TestReplicateGroups(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{7, 2, 7, 3, 999999, 999999, 2, 7},
		analyte("C0", 1, 2, 3, 4, 5, 6, 7, 8))
	ids, groups := t.replicateGroups()
	c.Check(ids, check.DeepEquals, []int{7, 2})
	c.Check(groups, check.DeepEquals, [][]int{{0, 2, 7}, {1, 6}})
}

func (s *tableSuite) TestCollectionOrder(c *check.C) {
	coll := NewCollection(
		NewTable("b", P180, nil),
		NewTable("a", P180, nil),
		NewTable("c", P180, nil))
	c.Check(coll.Names(), check.DeepEquals, []string{"b", "a", "c"})
	replacement := NewTable("a", P180, []int{1})
	coll.Put(replacement)
	c.Check(coll.Names(), check.DeepEquals, []string{"b", "a", "c"})
	c.Check(coll.Get("a"), check.Equals, replacement)
	coll.Remove("b")
	coll.Remove("nonexistent")
	c.Check(coll.Names(), check.DeepEquals, []string{"a", "c"})
	c.Check(coll.Len(), check.Equals, 2)

	var visited []string
	err := coll.Each(func(t *Table) error {
		visited = append(visited, t.Cohort)
		return errors.New("stop")
	})
	c.Check(err, check.ErrorMatches, "stop")
	c.Check(visited, check.DeepEquals, []string{"a"})
}
