// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/check.v1"
)

type transformSuite struct{}

var _ = check.Suite(&transformSuite{})

func (s *transformSuite) TestLog2(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{1, 2, 3, 4, 5, 999999},
		analyte("C0", 1, 2, 4, 8, nan, 0))
	coll, err := Log2(NewCollection(t))
	c.Assert(err, check.IsNil)
	values := coll.Get("ADNI1-FIA").Values("C0")
	c.Check(values[:4], check.DeepEquals, []float64{0, 1, 2, 3})
	c.Check(math.IsNaN(values[4]), check.Equals, true)
	c.Check(values[5], check.Equals, 0.0)
}

func (s *transformSuite) TestLog2NonPositive(c *check.C) {
	t := testTable(c, "NMR", NMR, []int{1, 2, 3},
		analyte("TOTAL_C", 1, 2, 4),
		analyte("XXL_VLDL_P", 1, 0, 4))
	_, err := Log2(NewCollection(t))
	var derr *DataIntegrityError
	c.Assert(errors.As(err, &derr), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*XXL_VLDL_P.*participant 2.*`)
	// nothing was transformed
	c.Check(t.Values("TOTAL_C"), check.DeepEquals, []float64{1, 2, 4})
}

func (s *transformSuite) TestZScore(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{1, 2, 3, 4, 999999},
		analyte("C0", 1, 2, 3, nan, 50),
		analyte("C2", 5, 5, 5, 5, 1))
	coll, err := ZScore(NewCollection(t))
	c.Assert(err, check.IsNil)
	t = coll.Get("ADNI1-FIA")
	values := t.Values("C0")
	c.Check(values[:3], check.DeepEquals, []float64{-1, 0, 1})
	c.Check(math.IsNaN(values[3]), check.Equals, true)
	c.Check(values[4], check.Equals, 50.0)
	c.Check(t.Values("C2"), check.DeepEquals, []float64{5, 5, 5, 5, 1})
}

func (s *transformSuite) TestWinsorize(c *check.C) {
	var values []float64
	for i := 0; i < 200; i++ {
		values = append(values, float64(i%2*2-1))
	}
	values = append(values, 20, -30)
	ids := append(seq(1, 201), 999999)
	mean, std := stat.MeanStdDev(values[:201], nil)

	t := testTable(c, "ADNI1-FIA", P180, ids, analyte("C0", values...))
	coll, err := Winsorize(NewCollection(t), 3)
	c.Assert(err, check.IsNil)
	got := coll.Get("ADNI1-FIA").Values("C0")
	c.Check(got[:200], check.DeepEquals, values[:200])
	c.Check(got[200], check.Equals, mean+3*std)
	c.Check(got[201], check.Equals, -30.0)
}

func (s *transformSuite) TestWinsorizeLowerBound(c *check.C) {
	values := append(repeat(1, 50), repeat(-1, 50)...)
	values = append(values, -25)
	mean, std := stat.MeanStdDev(values, nil)
	t := testTable(c, "ADNI1-FIA", P180, seq(1, len(values)), analyte("C0", values...))
	coll, err := Winsorize(NewCollection(t), 2)
	c.Assert(err, check.IsNil)
	c.Check(coll.Get("ADNI1-FIA").Values("C0")[100], check.Equals, mean-2*std)
}

func (s *transformSuite) TestObservedMeanStdDev(c *check.C) {
	mean, std := observedMeanStdDev([]float64{1, nan, 3, 100}, []int{0, 1, 2})
	c.Check(mean, check.Equals, 2.0)
	c.Check(std, check.Equals, math.Sqrt2)
	mean, std = observedMeanStdDev([]float64{1, nan}, []int{0, 1})
	c.Check(math.IsNaN(mean), check.Equals, true)
	c.Check(math.IsNaN(std), check.Equals, true)
}
