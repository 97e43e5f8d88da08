// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var chisquareSrc = rand.NewSource(rand.Uint64())

// chiSquareQuantile returns the value below which a χ² variable with
// df degrees of freedom falls with probability p.
func chiSquareQuantile(p, df float64) float64 {
	return distuv.ChiSquared{K: df, Src: chisquareSrc}.Quantile(p)
}
