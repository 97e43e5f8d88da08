// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type exportSuite struct{}

var _ = check.Suite(&exportSuite{})

func (s *exportSuite) table(c *check.C) *Table {
	var ids []int
	var a, b, d []float64
	for i := 0; i < 12; i++ {
		ids = append(ids, i+1)
		a = append(a, float64(i))
		b = append(b, float64(i%3))
		d = append(d, float64(i*7%5)+0.5)
	}
	ids = append(ids, 13, 999999)
	a = append(a, 1, 1)
	b = append(b, nan, 1)
	d = append(d, 1, 1)
	plates := make([]string, len(ids))
	for i := range plates {
		plates[i] = "P1"
	}
	return testTable(c, "ADNI1-FIA", P180, ids, text("Plate.Bar.Code", plates...), analyte("C0", a...), analyte("C2", b...), analyte("C3", d...))
}

func (s *exportSuite) TestWriteTableCSV(c *check.C) {
	t := testTable(c, "ADNI1-FIA", P180, []int{1, 999999},
		text("Plate.Bar.Code", "P1", "P2"),
		analyte("C0", 0.5, nan),
		analyte("C2", -1e-7, 3))
	var buf bytes.Buffer
	c.Assert(writeTableCSV(&buf, t), check.IsNil)
	c.Check(buf.String(), check.Equals, "RID,Plate.Bar.Code,C0,C2\n1,P1,0.5,-1e-07\n999999,P2,,3\n")
}

func (s *exportSuite) TestWriteCohort(c *check.C) {
	dir := c.MkDir()
	t := s.table(c)
	c.Assert(writeCohort(dir, t, exportOptions{numpy: true, pcaComponents: 2}), check.IsNil)

	csvdata, err := os.ReadFile(filepath.Join(dir, "ADNI1-FIA.csv"))
	c.Assert(err, check.IsNil)
	c.Check(bytes.Count(csvdata, []byte("\n")), check.Equals, t.Len()+1)

	npy, err := gonpy.NewFileReader(filepath.Join(dir, "ADNI1-FIA.npy"))
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{14, 3})
	data, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(data[3*5:3*5+3], check.DeepEquals, []float64{5, 2, 0.5})

	cols, err := os.ReadFile(filepath.Join(dir, "ADNI1-FIA.columns.csv"))
	c.Assert(err, check.IsNil)
	c.Check(string(cols), check.Equals, "C0\nC2\nC3\n")
	rows, err := os.ReadFile(filepath.Join(dir, "ADNI1-FIA.rows.csv"))
	c.Assert(err, check.IsNil)
	c.Check(bytes.HasSuffix(rows, []byte("\n12\n13\n999999\n")), check.Equals, true)

	pca, err := gonpy.NewFileReader(filepath.Join(dir, "ADNI1-FIA.pca.npy"))
	c.Assert(err, check.IsNil)
	c.Check(pca.Shape, check.DeepEquals, []int{12, 2})
	pcarows, err := os.ReadFile(filepath.Join(dir, "ADNI1-FIA.pca.rows.csv"))
	c.Assert(err, check.IsNil)
	c.Check(bytes.Count(pcarows, []byte("\n")), check.Equals, 12)
	c.Check(bytes.HasSuffix(pcarows, []byte("\n12\n")), check.Equals, true)
}

func (s *exportSuite) TestPCATooManyComponents(c *check.C) {
	_, _, err := participantPCA(s.table(c), 4)
	c.Check(err, check.ErrorMatches, `cannot compute 4 components from 12 complete rows of 3 metabolites`)
}

func (s *exportSuite) TestNormalize(c *check.C) {
	a := []float64{1, 2, 3}
	normalize(a)
	c.Check(a, check.DeepEquals, []float64{-1, 0, 1})
	a = []float64{4, 4}
	normalize(a)
	c.Check(a, check.DeepEquals, []float64{0, 0})
}
