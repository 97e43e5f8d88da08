// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"math"

	"gopkg.in/check.v1"
)

type sideTablesSuite struct{}

var _ = check.Suite(&sideTablesSuite{})

func (s *sideTablesSuite) TestFastingTable(c *check.C) {
	ft := NewFastingTable([]FastingRecord{
		{ID: 1, Visit: "bl", Status: nan},
		{ID: 1, Visit: "bl", Status: 1},
		{ID: 2, Visit: "bl", Status: 1},
		{ID: 2, Visit: "bl", Status: 0},
		{ID: 3, Visit: "bl", Status: 0},
		{ID: 3, Visit: "bl", Status: nan},
		{ID: 4, Visit: "m12", Status: 1},
		{ID: 5, Visit: "bl", Status: nan},
	})
	c.Check(ft.Len(), check.Equals, 4)
	for id, want := range map[int]float64{1: 1, 2: 1, 3: 0} {
		status, ok := ft.Status(id)
		c.Check(ok, check.Equals, true)
		c.Check(status, check.Equals, want, check.Commentf("id %d", id))
	}
	status, ok := ft.Status(5)
	c.Check(ok, check.Equals, true)
	c.Check(math.IsNaN(status), check.Equals, true)
	_, ok = ft.Status(4)
	c.Check(ok, check.Equals, false)
}

func (s *sideTablesSuite) TestFastingPolicy(c *check.C) {
	for in, want := range map[string]FastingPolicy{"": DropAbsent, "drop": DropAbsent, "keep": KeepAbsent} {
		policy, err := ParseFastingPolicy(in)
		c.Check(err, check.IsNil)
		c.Check(policy, check.Equals, want)
	}
	_, err := ParseFastingPolicy("ignore")
	c.Check(err, check.ErrorMatches, `configuration error in fasting: unknown fasting policy "ignore".*`)
}

func (s *sideTablesSuite) TestCovariateTable(c *check.C) {
	ct := NewCovariateTable([]string{"statin", "insulin"})
	c.Check(ct.Set(9, []float64{1, 0}), check.IsNil)
	c.Check(ct.Set(3, []float64{0, 0}), check.IsNil)
	c.Check(ct.Set(9, []float64{1, 1}), check.IsNil)
	c.Check(ct.Set(4, []float64{1}), check.NotNil)
	c.Check(ct.IDs(), check.DeepEquals, []int{3, 9})
	row, ok := ct.Row(9)
	c.Check(ok, check.Equals, true)
	c.Check(row, check.DeepEquals, []float64{1, 1})
	_, ok = ct.Row(4)
	c.Check(ok, check.Equals, false)
}

func (s *sideTablesSuite) TestLODLookup(c *check.C) {
	lt := &LODTable{Records: []LODRecord{
		{Plate: "p1", Values: map[string]float64{"Ala": 1, "Arg": nan}},
		{Plate: "p1", Values: map[string]float64{"Ala": 3}},
		{Plate: "p2", Values: map[string]float64{"Ala": 10}},
	}}
	x, ok := lt.Lookup("p1", "Ala")
	c.Check(ok, check.Equals, true)
	c.Check(x, check.Equals, 2.0)
	_, ok = lt.Lookup("p1", "Arg")
	c.Check(ok, check.Equals, false)
	_, ok = lt.Lookup("p3", "Ala")
	c.Check(ok, check.Equals, false)

	// a record without a plate applies everywhere
	lt = &LODTable{Records: []LODRecord{{Values: map[string]float64{"Ala": 4}}}}
	x, ok = lt.Lookup("p3", "Ala")
	c.Check(ok, check.Equals, true)
	c.Check(x, check.Equals, 4.0)

	var none *LODTable
	_, ok = none.Lookup("p1", "Ala")
	c.Check(ok, check.Equals, false)
}
