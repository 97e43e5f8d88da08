// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Removal is one dropped analyte or participant together with the
// value of the criterion that condemned it.
type Removal struct {
	Name  string
	Value float64
}

func stageLogger(stage string) *log.Entry {
	return log.WithField("stage", stage)
}

func stageLog(stage string, t *Table) *log.Entry {
	return log.WithFields(log.Fields{"stage": stage, "cohort": t.Cohort})
}

// logRemovals writes the human-readable report of a filtering stage:
// what is about to be dropped and the criterion value for each.
func logRemovals(stage string, t *Table, what, criterion string, removed []Removal) {
	logger := stageLog(stage, t)
	if len(removed) == 0 {
		logger.Infof("none of the %s will be dropped in the %s cohort", what, t.Cohort)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "the following %d %s in the %s cohort will be removed:", len(removed), what, t.Cohort)
	for _, r := range removed {
		fmt.Fprintf(&b, "\n\t%-24s %s=%.6g", r.Name, criterion, r.Value)
	}
	logger.Info(b.String())
}

func removalNames(removed []Removal) []string {
	names := make([]string, len(removed))
	for i, r := range removed {
		names[i] = r.Name
	}
	return names
}
