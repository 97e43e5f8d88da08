// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package icc computes the two-way random effects, single rater,
// absolute agreement intra-class correlation, ICC(2,1) in Shrout and
// Fleiss' notation.
package icc

import (
	"math"
	"sort"
)

// Rating is one measurement of a target by a rater, in long format.
type Rating struct {
	Target int
	Rater  int
	Value  float64
}

// Result holds the two-way ANOVA mean squares and the resulting
// coefficient. ICC is NaN when fewer than two complete targets or
// fewer than two raters are available.
type Result struct {
	Targets int
	Raters  int
	MSR     float64 // between targets
	MSC     float64 // between raters
	MSE     float64 // residual
	ICC     float64
}

// Wide pivots ratings into a targets × raters matrix. Targets keep
// their order of first appearance, raters are sorted. Cells with no
// rating are NaN; repeated (target, rater) pairs are averaged.
func Wide(ratings []Rating) (targets, raters []int, m [][]float64) {
	tidx := map[int]int{}
	ridx := map[int]int{}
	for _, r := range ratings {
		if _, ok := tidx[r.Target]; !ok {
			tidx[r.Target] = len(targets)
			targets = append(targets, r.Target)
		}
		if _, ok := ridx[r.Rater]; !ok {
			ridx[r.Rater] = 0
			raters = append(raters, r.Rater)
		}
	}
	sort.Ints(raters)
	for i, r := range raters {
		ridx[r] = i
	}
	m = make([][]float64, len(targets))
	count := make([][]int, len(targets))
	for i := range m {
		m[i] = make([]float64, len(raters))
		count[i] = make([]int, len(raters))
	}
	for _, r := range ratings {
		if math.IsNaN(r.Value) {
			continue
		}
		i, j := tidx[r.Target], ridx[r.Rater]
		m[i][j] += r.Value
		count[i][j]++
	}
	for i := range m {
		for j := range m[i] {
			if count[i][j] == 0 {
				m[i][j] = math.NaN()
			} else {
				m[i][j] /= float64(count[i][j])
			}
		}
	}
	return
}

// Compute returns ICC(2,1) for the given ratings. Targets missing a
// rating from any rater are omitted entirely.
func Compute(ratings []Rating) Result {
	_, raters, wide := Wide(ratings)
	complete := wide[:0:0]
	for _, row := range wide {
		ok := true
		for _, x := range row {
			if math.IsNaN(x) {
				ok = false
				break
			}
		}
		if ok {
			complete = append(complete, row)
		}
	}
	return fromMatrix(complete, len(raters))
}

func fromMatrix(m [][]float64, k int) Result {
	n := len(m)
	res := Result{Targets: n, Raters: k, MSR: math.NaN(), MSC: math.NaN(), MSE: math.NaN(), ICC: math.NaN()}
	if n < 2 || k < 2 {
		return res
	}
	var grand float64
	rowMean := make([]float64, n)
	colMean := make([]float64, k)
	for i, row := range m {
		for j, x := range row {
			rowMean[i] += x
			colMean[j] += x
			grand += x
		}
	}
	grand /= float64(n * k)
	for i := range rowMean {
		rowMean[i] /= float64(k)
	}
	for j := range colMean {
		colMean[j] /= float64(n)
	}
	var ssr, ssc, sst float64
	for _, x := range rowMean {
		ssr += (x - grand) * (x - grand)
	}
	ssr *= float64(k)
	for _, x := range colMean {
		ssc += (x - grand) * (x - grand)
	}
	ssc *= float64(n)
	for _, row := range m {
		for _, x := range row {
			sst += (x - grand) * (x - grand)
		}
	}
	sse := sst - ssr - ssc
	res.MSR = ssr / float64(n-1)
	res.MSC = ssc / float64(k-1)
	res.MSE = sse / float64((n-1)*(k-1))
	res.ICC = (res.MSR - res.MSE) / (res.MSR + float64(k-1)*res.MSE + float64(k)*(res.MSC-res.MSE)/float64(n))
	return res
}
