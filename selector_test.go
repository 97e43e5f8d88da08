// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"gopkg.in/check.v1"
)

type selectorSuite struct{}

var _ = check.Suite(&selectorSuite{})

func (s *selectorSuite) TestFamilyOf(c *check.C) {
	for cohort, family := range map[string]Family{
		"ADNI1-FIA":    FamilyFIA,
		"ADNI2GO-FIA":  FamilyFIA,
		"ADNI1-UPLC":   FamilyUPLC,
		"NMR":          FamilyNMR,
		"ADNI1-P180":   FamilyP180,
		"ADNI2GO-LCMS": FamilyUnknown,
	} {
		c.Check(FamilyOf(cohort), check.Equals, family, check.Commentf("%s", cohort))
	}
}

func (s *selectorSuite) TestSelectAnalytes(c *check.C) {
	fia := []string{"RID", "Plate.Bar.Code", "C0", "C2", "SM.C26.1", "Comment"}
	c.Check(SelectAnalytes(fia, "ADNI1-FIA"), check.DeepEquals, []string{"C0", "C2", "SM.C26.1"})

	uplc := []string{"RID", "Ala", "Arg", "SDMA", "Plate.Bar.Code"}
	c.Check(SelectAnalytes(uplc, "ADNI2GO-UPLC"), check.DeepEquals, []string{"Ala", "Arg", "SDMA"})

	merged := []string{"C0", "C2", "Ala", "SDMA"}
	c.Check(SelectAnalytes(merged, "ADNI1-P180"), check.DeepEquals, merged)

	nmr := []string{"RID", "EDTA_PLASMA", "TOTAL_C", "LDL_C", "S_HDL_TG_PCT"}
	c.Check(SelectAnalytes(nmr, "NMR"), check.DeepEquals, []string{"TOTAL_C", "LDL_C", "S_HDL_TG_PCT"})
}

func (s *selectorSuite) TestSelectAnalytesEmpty(c *check.C) {
	c.Check(SelectAnalytes([]string{"C0", "SM.C26.1"}, "ADNI1-LCMS"), check.HasLen, 0)
	c.Check(SelectAnalytes([]string{"C0", "C2"}, "ADNI1-FIA"), check.HasLen, 0)
	c.Check(SelectAnalytes([]string{"SM.C26.1", "C0"}, "ADNI1-FIA"), check.HasLen, 0)
}
