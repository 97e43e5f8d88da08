// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// lodSheet describes the layout of one cohort's LOD workbook.
type lodSheet struct {
	cohort  string
	name    string
	rows    int // plate rows after the header
	barcode int // token of the plate label holding the barcode, -1 if none
}

var lodSheets = []lodSheet{
	{"ADNI1-UPLC", "4097_UPLC_p180_Data.xlsx", 11, 3},
	{"ADNI1-FIA", "4097_FIA_p180_Data.xlsx", 11, 2},
	{"ADNI2GO-UPLC", "4610 UPLC p180 Data.xlsx", 1, -1},
	{"ADNI2GO-FIA", "4610 FIA p180 Data.xlsx", 12, 2},
}

// Column positions in the LOD sheets.
const (
	lodPlateColumn = 10
	lodFirstValue  = 11
)

// LoadLOD reads the p180 limit-of-detection workbooks. Cohorts whose
// workbook is missing are absent from the result.
func (src *DirSource) LoadLOD() (map[string]*LODTable, error) {
	dir := src.LODDir
	if dir == "" {
		dir = src.Dir
	}
	lod := map[string]*LODTable{}
	for _, sheet := range lodSheets {
		fnm, ok := src.find(dir, sheet.name)
		if !ok {
			log.Warnf("%s: no LOD workbook %q in %s", sheet.cohort, sheet.name, dir)
			continue
		}
		f, err := open(fnm)
		if err != nil {
			return nil, err
		}
		table, err := readLODWorkbook(f, sheet)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fnm, err)
		}
		log.WithField("cohort", sheet.cohort).Infof("loaded %d LOD records from %s", len(table.Records), fnm)
		lod[sheet.cohort] = table
	}
	return lod, nil
}

func readLODWorkbook(r io.Reader, sheet lodSheet) (*LODTable, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer xl.Close()
	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := xl.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return parseLODRows(rows, sheet)
}

// parseLODRows reads the header from the second row, skips the third,
// and reads sheet.rows plate rows after that.
func parseLODRows(rows [][]string, sheet lodSheet) (*LODTable, error) {
	if len(rows) < 3 {
		return nil, fmt.Errorf("sheet has %d rows, expected a header and data", len(rows))
	}
	header := rows[1]
	names := make([]string, len(header))
	for i, name := range header {
		name = sanitizeColumnName(strings.TrimSpace(name))
		if strings.Contains(sheet.cohort, "UPLC") && name == "Met.SO" {
			name = "Met.So"
		}
		names[i] = name
	}
	data := rows[3:]
	if len(data) > sheet.rows {
		data = data[:sheet.rows]
	}
	table := &LODTable{}
	for n, row := range data {
		var plate string
		if sheet.barcode >= 0 {
			if len(row) <= lodPlateColumn {
				return nil, fmt.Errorf("row %d has no plate label", n+4)
			}
			tokens := strings.Split(row[lodPlateColumn], " ")
			if len(tokens) <= sheet.barcode {
				return nil, fmt.Errorf("row %d: cannot find barcode in plate label %q", n+4, row[lodPlateColumn])
			}
			plate = strings.ReplaceAll(tokens[sheet.barcode], "/", "-")
		}
		rec := LODRecord{Plate: plate, Values: map[string]float64{}}
		for c := lodFirstValue; c < len(row) && c < len(names); c++ {
			if names[c] == "" {
				continue
			}
			x, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				x = math.NaN()
			}
			rec.Values[names[c]] = x
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}
