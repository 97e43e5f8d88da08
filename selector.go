// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"strings"
)

// Family identifies the sample-sheet layout of a cohort, which
// determines where its analyte columns are.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyFIA
	FamilyUPLC
	FamilyNMR
	FamilyP180
)

func (f Family) String() string {
	switch f {
	case FamilyFIA:
		return "FIA"
	case FamilyUPLC:
		return "UPLC"
	case FamilyNMR:
		return "NMR"
	case FamilyP180:
		return "P180"
	default:
		return "unknown"
	}
}

// FamilyOf resolves a cohort key such as "ADNI2GO-FIA" to its family.
// Checked in this order so that a merged "ADNI1-P180" key is not
// mistaken for one of its parts.
func FamilyOf(cohort string) Family {
	switch {
	case strings.Contains(cohort, "FIA"):
		return FamilyFIA
	case strings.Contains(cohort, "UPLC"):
		return FamilyUPLC
	case strings.Contains(cohort, "NMR"):
		return FamilyNMR
	case strings.Contains(cohort, "P180"):
		return FamilyP180
	}
	return FamilyUnknown
}

type analyteBounds struct {
	first, last string
}

// First and last analyte column (inclusive) of each family's sheet.
var familyBounds = map[Family]analyteBounds{
	FamilyFIA:  {"C0", "SM.C26.1"},
	FamilyUPLC: {"Ala", "SDMA"},
	FamilyNMR:  {"TOTAL_C", "S_HDL_TG_PCT"},
	FamilyP180: {"C0", "SDMA"},
}

// SelectAnalytes returns the analyte columns, in order, among the
// given column names for the cohort's family. The result is empty for
// an unknown family or when the boundary columns are absent.
func SelectAnalytes(columns []string, cohort string) []string {
	bounds, ok := familyBounds[FamilyOf(cohort)]
	if !ok {
		return nil
	}
	start, end := -1, -1
	for i, name := range columns {
		if name == bounds.first && start < 0 {
			start = i
		}
		if name == bounds.last && end < 0 {
			end = i
		}
	}
	if start < 0 || end < start {
		return nil
	}
	return append([]string(nil), columns[start:end+1]...)
}
