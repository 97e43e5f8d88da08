// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/csimplestring/go-csv/detector"
	log "github.com/sirupsen/logrus"
)

// DataSource supplies the cohort tables and side tables a pipeline
// run consumes.
type DataSource interface {
	Load(platform Platform) (*Collection, error)
	LoadLOD() (map[string]*LODTable, error)
	LoadFasting() (*FastingTable, error)
	LoadCovariates() (*CovariateTable, error)
}

type cohortFile struct {
	cohort string
	name   string
}

var platformFiles = map[Platform][]cohortFile{
	P180: {
		{"ADNI1-UPLC", "ADMCDUKEP180UPLC_01_15_16.csv"},
		{"ADNI1-FIA", "ADMCDUKEP180FIA_01_15_16.csv"},
		{"ADNI2GO-UPLC", "ADMCDUKEP180UPLCADNI2GO.csv"},
		{"ADNI2GO-FIA", "ADMCDUKEP180FIAADNI2GO.csv"},
	},
	NMR: {
		{"NMR", "ADNINIGHTINGALE2.csv"},
	},
}

// Cell values read as missing, per platform.
var naTokens = map[Platform][]string{
	P180: {"< LOD", "No Interception", ">Highest CS"},
	NMR:  {"TAG"},
}

const (
	idColumn        = "RID"
	medicationsFile = "ADMCPATIENTDRUGCLASSES_20170512.csv"
)

// DirSource reads the ADNI metabolomics release files from a
// directory, which may be an Arvados collection path. Any file may be
// gzipped, with a ".gz" suffix.
type DirSource struct {
	Dir         string
	LODDir      string // defaults to Dir
	FastingFile string
}

// Load reads every cohort file of the platform that exists in the
// directory. Cohorts without a file are absent from the collection.
func (src *DirSource) Load(platform Platform) (*Collection, error) {
	files, ok := platformFiles[platform]
	if !ok {
		return nil, configErrorf("", "", "the platform should be p180 or nmr, not %s", platform)
	}
	coll := NewCollection()
	for _, cf := range files {
		fnm, ok := src.find(src.Dir, cf.name)
		if !ok {
			log.Debugf("%s: no %s in %s", cf.cohort, cf.name, src.Dir)
			continue
		}
		t, err := src.readCohort(fnm, cf.cohort, platform)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fnm, err)
		}
		log.WithField("cohort", cf.cohort).Infof("loaded %d rows, %d metabolites from %s", t.Len(), len(t.Analytes()), fnm)
		coll.Put(t)
	}
	if coll.Len() == 0 {
		return nil, configErrorf("", "", "no %s data files found in %s", platform, src.Dir)
	}
	return coll, nil
}

// find returns the path of name (or name.gz) in dir.
func (src *DirSource) find(dir, name string) (string, bool) {
	for _, fnm := range []string{filepath.Join(dir, name), filepath.Join(dir, name) + ".gz"} {
		if _, err := statFile(fnm); err == nil {
			return fnm, true
		}
	}
	return "", false
}

func (src *DirSource) readCohort(fnm, cohort string, platform Platform) (*Table, error) {
	header, records, err := readCSV(fnm)
	if err != nil {
		return nil, err
	}
	if strings.Contains(cohort, "ADNI2GO") {
		for i, name := range header {
			header[i] = sanitizeColumnName(name)
		}
	}
	if cohort == "ADNI2GO-UPLC" {
		// misspelled in the ADNI2GO UPLC release
		for i, name := range header {
			if name == "canosine" {
				header[i] = "Carnosine"
			}
		}
	}
	return buildTable(cohort, platform, header, records, naTokens[platform])
}

// buildTable converts CSV records into a table sorted by id. Analyte
// columns are chosen by SelectAnalytes; NA tokens and blank cells
// become NaN.
func buildTable(cohort string, platform Platform, header []string, records [][]string, na []string) (*Table, error) {
	idcol := -1
	for i, name := range header {
		if name == idColumn {
			idcol = i
			break
		}
	}
	if idcol < 0 {
		return nil, &DataIntegrityError{Cohort: cohort, Msg: "no " + idColumn + " column"}
	}
	ids := make([]int, len(records))
	for r, rec := range records {
		id, err := strconv.Atoi(strings.TrimSpace(rec[idcol]))
		if err != nil {
			return nil, &DataIntegrityError{Cohort: cohort, Msg: fmt.Sprintf("row %d: bad %s", r+2, idColumn), Err: err}
		}
		ids[r] = id
	}
	isNA := map[string]bool{"": true}
	for _, tok := range na {
		isNA[tok] = true
	}
	selected := SelectAnalytes(header, cohort)
	if len(selected) == 0 && FamilyOf(cohort) != FamilyUnknown {
		bounds := familyBounds[FamilyOf(cohort)]
		log.WithField("cohort", cohort).Warnf("no metabolite columns between %s and %s, every column is read as text", bounds.first, bounds.last)
	}
	analytes := map[string]bool{}
	for _, name := range selected {
		analytes[name] = true
	}
	t := NewTable(cohort, platform, ids)
	for c, name := range header {
		if c == idcol {
			continue
		}
		if !analytes[name] {
			text := make([]string, len(records))
			for r, rec := range records {
				text[r] = rec[c]
			}
			if err := t.AddText(name, text); err != nil {
				return nil, err
			}
			continue
		}
		values := make([]float64, len(records))
		for r, rec := range records {
			cell := strings.TrimSpace(rec[c])
			if isNA[cell] {
				values[r] = math.NaN()
				continue
			}
			x, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &DataIntegrityError{Cohort: cohort, Msg: fmt.Sprintf("row %d column %s: non-numeric value %q", r+2, name, cell)}
			}
			values[r] = x
		}
		if err := t.AddAnalyte(name, values); err != nil {
			return nil, err
		}
	}
	t.SortByID()
	return t, nil
}

var badColumnChars = strings.NewReplacer("-", ".", ":", ".", "(", ".", ")", ".", " ", ".")

// sanitizeColumnName replaces the characters the ADNI2GO and LOD
// files use in metabolite names but the ADNI1 files do not.
func sanitizeColumnName(name string) string {
	return badColumnChars.Replace(name)
}

// readCSV reads a whole delimited file, detecting the delimiter from
// its first 64 KiB.
func readCSV(fnm string) ([]string, [][]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	br := bufio.NewReaderSize(f, 1<<16)
	head, err := br.Peek(1 << 16)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, err
	}
	rdr := csv.NewReader(br)
	rdr.Comma = detectDelimiter(bytes.NewReader(head))
	header, err := rdr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	records, err := rdr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, records, nil
}

func detectDelimiter(r io.Reader) rune {
	delimiters := detector.New().DetectDelimiter(r, '"')
	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}
	return ','
}

// LoadFasting reads the baseline fasting status (BIFAST) of each
// participant. The code -4 means not recorded.
func (src *DirSource) LoadFasting() (*FastingTable, error) {
	if src.FastingFile == "" {
		return nil, configErrorf("fasting", "", "no fasting file given")
	}
	header, records, err := readCSV(src.FastingFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigurationError{Stage: "fasting", Msg: "no fasting file", Err: err}
	} else if err != nil {
		return nil, err
	}
	col, err := columnIndexes(src.FastingFile, header, idColumn, "VISCODE2", "BIFAST")
	if err != nil {
		return nil, err
	}
	var fasting []FastingRecord
	for _, rec := range records {
		id, err := strconv.Atoi(strings.TrimSpace(rec[col[0]]))
		if err != nil {
			continue
		}
		status, err := strconv.ParseFloat(strings.TrimSpace(rec[col[2]]), 64)
		if err != nil || status == -4 {
			status = math.NaN()
		}
		fasting = append(fasting, FastingRecord{ID: id, Visit: strings.TrimSpace(rec[col[1]]), Status: status})
	}
	ft := NewFastingTable(fasting)
	log.Infof("loaded baseline fasting status of %d participants from %s", ft.Len(), src.FastingFile)
	return ft, nil
}

// Cells read as missing in the medication file.
var medicationNA = map[string]bool{"": true, "NA": true, "N/A": true, "NaN": true, "nan": true, "NULL": true, "null": true}

// LoadCovariates reads the baseline medication classes as 0/1
// covariates.
func (src *DirSource) LoadCovariates() (*CovariateTable, error) {
	fnm, ok := src.find(src.Dir, medicationsFile)
	if !ok {
		return nil, configErrorf("residualize", "", "there is no medication file %s in %s", medicationsFile, src.Dir)
	}
	header, records, err := readCSV(fnm)
	if err != nil {
		return nil, err
	}
	col, err := columnIndexes(fnm, header, idColumn, "VISCODE2")
	if err != nil {
		return nil, err
	}
	skip := map[string]bool{idColumn: true, "VISCODE2": true, "NA": true, "Phase": true}
	var names []string
	var cols []int
	for i, name := range header {
		if !skip[name] {
			names = append(names, name)
			cols = append(cols, i)
		}
	}
	ct := NewCovariateTable(names)
	for _, rec := range records {
		if strings.TrimSpace(rec[col[1]]) != "bl" {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[col[0]]))
		if err != nil {
			return nil, &DataIntegrityError{Stage: "residualize", Msg: fmt.Sprintf("%s: bad %s %q", fnm, idColumn, rec[col[0]])}
		}
		row := make([]float64, len(cols))
		for k, c := range cols {
			if !medicationNA[strings.TrimSpace(rec[c])] {
				row[k] = 1
			}
		}
		if err := ct.Set(id, row); err != nil {
			return nil, err
		}
	}
	log.Infof("loaded %d medication classes for %d participants from %s", len(names), len(ct.IDs()), fnm)
	return ct, nil
}

func columnIndexes(fnm string, header []string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for c, h := range header {
			if h == name {
				idx[i] = c
				break
			}
		}
		if idx[i] < 0 {
			return nil, &DataIntegrityError{Msg: fmt.Sprintf("%s: no %s column", fnm, name)}
		}
	}
	return idx, nil
}
