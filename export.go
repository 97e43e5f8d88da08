// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/james-bowman/nlp"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// writeTableCSV writes the id column followed by every column of t.
// Missing analyte values are written as empty cells.
func writeTableCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	columns := t.Columns()
	if err := cw.Write(append([]string{idColumn}, columns...)); err != nil {
		return err
	}
	record := make([]string, len(columns)+1)
	for row := 0; row < t.Len(); row++ {
		record[0] = strconv.Itoa(t.ID(row))
		for c, name := range columns {
			if values := t.Values(name); values != nil {
				record[c+1] = formatValue(values[row])
			} else {
				record[c+1] = t.Text(name)[row]
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// analyteMatrix copies the analyte columns of the given rows into a
// row-major rows × analytes slice.
func analyteMatrix(t *Table, rows []int) (data []float64, cols []string) {
	cols = t.Analytes()
	data = make([]float64, len(rows)*len(cols))
	for j, name := range cols {
		values := t.Values(name)
		for i, row := range rows {
			data[i*len(cols)+j] = values[row]
		}
	}
	return
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func writeNumpy(w io.Writer, data []float64, rows, cols int) error {
	bufw := bufio.NewWriter(w)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = []int{rows, cols}
	if err := npw.WriteFloat64(data); err != nil {
		return err
	}
	return bufw.Flush()
}

// writeLines writes one item per line.
func writeLines(w io.Writer, items []string) error {
	bufw := bufio.NewWriter(w)
	for _, item := range items {
		fmt.Fprintln(bufw, item)
	}
	return bufw.Flush()
}

// participantPCA projects the complete participant rows of t onto the
// first k principal components of their z-scored analyte values. It
// returns the projection (rows × k) and the ids of the rows used.
func participantPCA(t *Table, k int) (*mat.Dense, []int, error) {
	var rows []int
	analytes := t.Analytes()
	for _, row := range t.rowsOfKind(Participant) {
		complete := true
		for _, name := range analytes {
			if isMissing(t.Values(name)[row]) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, row)
		}
	}
	if k > len(analytes) || k > len(rows) {
		return nil, nil, fmt.Errorf("cannot compute %d components from %d complete rows of %d metabolites", k, len(rows), len(analytes))
	}
	// features × samples, the orientation nlp expects
	mtx := mat.NewDense(len(analytes), len(rows), nil)
	series := make([]float64, len(rows))
	for j, name := range analytes {
		values := t.Values(name)
		for i, row := range rows {
			series[i] = values[row]
		}
		normalize(series)
		mtx.SetRow(j, series)
	}
	transformer := nlp.NewPCA(k)
	transformer.Fit(mtx)
	transformed, err := transformer.Transform(mtx)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int, len(rows))
	for i, row := range rows {
		ids[i] = t.ID(row)
	}
	return mat.DenseCopyOf(transformed.T()), ids, nil
}

// normalize z-scores a in place. A constant series becomes all zero.
func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	for i, x := range a {
		if std > 0 {
			a[i] = (x - mean) / std
		} else {
			a[i] = 0
		}
	}
}

// exportOptions selects the files writeCohort produces besides the
// cohort CSV.
type exportOptions struct {
	numpy         bool
	pcaComponents int
}

// writeCohort writes <cohort>.csv into dir, plus the numpy and PCA
// files selected by opts.
func writeCohort(dir string, t *Table, opts exportOptions) error {
	base := filepath.Join(dir, t.Cohort)
	err := writeFile(base+".csv", func(w io.Writer) error { return writeTableCSV(w, t) })
	if err != nil {
		return err
	}
	if opts.numpy {
		rows := make([]int, t.Len())
		ids := make([]string, t.Len())
		for i := range rows {
			rows[i] = i
			ids[i] = strconv.Itoa(t.ID(i))
		}
		data, cols := analyteMatrix(t, rows)
		if err := writeFile(base+".npy", func(w io.Writer) error { return writeNumpy(w, data, len(rows), len(cols)) }); err != nil {
			return err
		}
		if err := writeFile(base+".rows.csv", func(w io.Writer) error { return writeLines(w, ids) }); err != nil {
			return err
		}
		if err := writeFile(base+".columns.csv", func(w io.Writer) error { return writeLines(w, cols) }); err != nil {
			return err
		}
	}
	if opts.pcaComponents > 0 {
		pca, ids, err := participantPCA(t, opts.pcaComponents)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Cohort, err)
		}
		rows, cols := pca.Dims()
		log.WithField("cohort", t.Cohort).Infof("writing %d principal components of %d participants", cols, rows)
		data := make([]float64, 0, rows*cols)
		for i := 0; i < rows; i++ {
			data = append(data, pca.RawRowView(i)...)
		}
		if err := writeFile(base+".pca.npy", func(w io.Writer) error { return writeNumpy(w, data, rows, cols) }); err != nil {
			return err
		}
		idtext := make([]string, len(ids))
		for i, id := range ids {
			idtext[i] = strconv.Itoa(id)
		}
		if err := writeFile(base+".pca.rows.csv", func(w io.Writer) error { return writeLines(w, idtext) }); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(fnm string, write func(io.Writer) error) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", fnm, err)
	}
	return f.Close()
}
