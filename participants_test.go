// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"errors"
	"math"

	"gopkg.in/check.v1"
)

type participantsSuite struct{}

var _ = check.Suite(&participantsSuite{})

func (s *participantsSuite) fastingTable() *FastingTable {
	return NewFastingTable([]FastingRecord{
		{ID: 1, Visit: "bl", Status: 1},
		{ID: 2, Visit: "bl", Status: 0},
		{ID: 3, Visit: "bl", Status: nan},
		{ID: 4, Visit: "m12", Status: 1},
		{ID: 5, Visit: "bl", Status: 1},
	})
}

func (s *participantsSuite) TestFasting(c *check.C) {
	for policy, want := range map[FastingPolicy][]int{
		DropAbsent: {1},
		KeepAbsent: {1, 4, 999999},
	} {
		t := testTable(c, "ADNI1-FIA", P180, []int{1, 2, 3, 4, 999999}, analyte("C0", 1, 2, 3, 4, 5))
		coll, err := RemoveNonFasting(NewCollection(t), s.fastingTable(), policy)
		c.Assert(err, check.IsNil)
		c.Check(coll.Get("ADNI1-FIA").IDs(), check.DeepEquals, want, check.Commentf("policy %d", policy))
	}
}

func (s *participantsSuite) TestFastingTableRequired(c *check.C) {
	t := testTable(c, "NMR", NMR, []int{1}, analyte("TOTAL_C", 1))
	_, err := RemoveNonFasting(NewCollection(t), nil, DropAbsent)
	var cerr *ConfigurationError
	c.Check(errors.As(err, &cerr), check.Equals, true)
}

func (s *participantsSuite) TestP180Exclusions(c *check.C) {
	newColl := func() *Collection {
		return NewCollection(
			testTable(c, "ADNI2GO-UPLC", P180, []int{1, 2}, analyte("Ala", 1, 2), analyte("Asp", 1, 2), analyte("DOPA", 1, 2)),
			testTable(c, "ADNI1-UPLC", P180, []int{1, 2}, analyte("Ala", 1, 2), analyte("Asp", 1, 2)),
			testTable(c, "ADNI1-FIA", P180, []int{1, 2}, analyte("C0", 1, 2)))
	}
	coll, err := RemoveQCTags(newColl(), P180, nil)
	c.Assert(err, check.IsNil)
	c.Check(coll.Get("ADNI2GO-UPLC").Analytes(), check.DeepEquals, []string{"Ala"})
	c.Check(coll.Get("ADNI1-UPLC").Analytes(), check.DeepEquals, []string{"Ala", "Asp"})
	c.Check(coll.Get("ADNI1-FIA").Analytes(), check.DeepEquals, []string{"C0"})

	coll, err = RemoveQCTags(newColl(), P180, map[string][]string{"ADNI1-FIA": {"C0"}})
	c.Assert(err, check.IsNil)
	c.Check(coll.Get("ADNI2GO-UPLC").Analytes(), check.HasLen, 3)
	c.Check(coll.Get("ADNI1-FIA").Analytes(), check.HasLen, 0)
}

// nmrTagTable has all QC tag columns; flagged sets the given tag on
// the given row.
func nmrTagTable(c *check.C, ids []int, flagged map[string]int) *Table {
	cols := []testColumn{analyte("TOTAL_C", seqFloat(len(ids))...)}
	for _, tag := range nmrQCTags {
		cells := make([]string, len(ids))
		for i := range cells {
			cells[i] = "0"
		}
		if i, ok := flagged[tag]; ok {
			cells[i] = "1"
		}
		cells[len(cells)-1] = ""
		cols = append(cols, text(tag, cells...))
	}
	return testTable(c, "NMR", NMR, ids, cols...)
}

func seqFloat(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func (s *participantsSuite) TestNMRTags(c *check.C) {
	t := nmrTagTable(c, []int{1, 2, 3, 4}, map[string]int{
		"HIGH_ETHANOL":                  1,
		"BELOW_LIMIT_OF_QUANTIFICATION": 2,
	})
	coll, err := RemoveQCTags(NewCollection(t), NMR, nil)
	c.Assert(err, check.IsNil)
	c.Check(coll.Get("NMR").IDs(), check.DeepEquals, []int{1, 3, 4})
}

func (s *participantsSuite) TestNMRTagColumnsRequired(c *check.C) {
	t := nmrTagTable(c, []int{1, 2}, nil)
	t.DropColumns("LOW_PROTEIN")
	_, err := RemoveQCTags(NewCollection(t), NMR, nil)
	var cerr *ConfigurationError
	c.Assert(errors.As(err, &cerr), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*LOW_PROTEIN.*`)
}

func (s *participantsSuite) TestUnknownPlatform(c *check.C) {
	_, err := RemoveQCTags(NewCollection(), Platform(7), nil)
	var cerr *ConfigurationError
	c.Check(errors.As(err, &cerr), check.Equals, true)
}

func (s *participantsSuite) outlierTable(c *check.C) *Table {
	var ids []int
	var x, y, z []float64
	for rep := 0; rep < 8; rep++ {
		for i := 0; i < 27; i++ {
			ids = append(ids, len(ids)+1)
			x = append(x, float64(i%3-1))
			y = append(y, float64(i/3%3-1))
			z = append(z, float64(i/9-1))
		}
	}
	// a row 10 standard deviations out on every analyte, a row that
	// cannot be tested, and an extreme pool
	far := 10 * math.Sqrt(2.0/3)
	ids = append(ids, 217, 218, 999999)
	x = append(x, far, nan, 50)
	y = append(y, far, 40, 50)
	z = append(z, far, 40, 50)
	return testTable(c, "ADNI1-FIA", P180, ids, analyte("C0", x...), analyte("C2", y...), analyte("C3", z...))
}

func (s *participantsSuite) TestOutliers(c *check.C) {
	t := s.outlierTable(c)
	n := t.Len()
	coll, err := RemoveOutliers(NewCollection(t), 0.999)
	c.Assert(err, check.IsNil)
	t = coll.Get("ADNI1-FIA")
	c.Check(t.Len(), check.Equals, n-1)
	for _, id := range t.IDs() {
		c.Check(id, check.Not(check.Equals), 217)
	}
	c.Check(t.ID(t.Len()-2), check.Equals, 218)
	c.Check(t.ID(t.Len()-1), check.Equals, 999999)
}

func (s *participantsSuite) TestSingularCovariance(c *check.C) {
	values := seqFloat(20)
	t := testTable(c, "ADNI1-FIA", P180, seq(1, 20), analyte("C0", values...), analyte("C2", values...))
	_, err := RemoveOutliers(NewCollection(t), 0.999)
	var derr *DataIntegrityError
	c.Check(errors.As(err, &derr), check.Equals, true)
}

func (s *participantsSuite) TestTooFewAnalytes(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, seq(1, 20), analyte("C0", seqFloat(20)...))
	_, err := RemoveOutliers(NewCollection(t), 0.999)
	var derr *DataIntegrityError
	c.Check(errors.As(err, &derr), check.Equals, true)
}
