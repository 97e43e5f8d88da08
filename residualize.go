// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Covariates whose p-value exceeds this are eliminated.
const eliminationAlpha = 0.05

var olsConfig = &glm.Config{
	Family:    glm.NewFamily(glm.GaussianFamily),
	FitMethod: "IRLS",
	Log:       log.New(io.Discard, "", 0),
}

// Residualize removes the linear effect of covariates (medication
// classes) from every analyte. For each analyte, covariates are
// eliminated backwards, one per round, starting with the least
// significant, until every remaining covariate has p <= 0.05. The
// participant values are then replaced by the residuals of that
// model. If no covariate survives the values are left unchanged.
func Residualize(coll *Collection, covariates *CovariateTable) (*Collection, error) {
	const stage = "residualize"
	if covariates == nil {
		return coll, configErrorf(stage, "", "no covariate table supplied")
	}
	stageLogger(stage).Infof("residualizing metabolites against %d covariates", len(covariates.Names))
	err := coll.Each(func(t *Table) error {
		logger := stageLog(stage, t)
		adjusted := 0
		for _, name := range t.Analytes() {
			values := t.Values(name)
			var rows []int
			var y []float64
			var x [][]float64
			for _, row := range t.rowsOfKind(Participant) {
				cov, ok := covariates.Row(t.ID(row))
				if !ok || isMissing(values[row]) {
					continue
				}
				rows = append(rows, row)
				y = append(y, values[row])
				x = append(x, cov)
			}
			kept, fit, err := backwardEliminate(y, x, covariates.Names)
			if err != nil {
				logger.Warnf("%s: %s, left unchanged", name, err)
				continue
			}
			if len(kept) == 0 {
				logger.Debugf("%s: no significant covariates found", name)
				continue
			}
			logger.Debugf("%s: adjusting for %v", name, kept)
			for i, row := range rows {
				values[row] = fit.resid[i]
			}
			adjusted++
		}
		logger.Infof("%d metabolites were adjusted for covariates", adjusted)
		return nil
	})
	return coll, err
}

var errNoObservations = errors.New("not enough observations")

// backwardEliminate fits y on the non-zero covariate columns of x and
// drops the single covariate with the largest p-value above
// eliminationAlpha until none is left above it. A column identical to
// an earlier one over these rows is dropped before fitting. It returns
// the names of the surviving covariates and the final fit.
func backwardEliminate(y []float64, x [][]float64, names []string) ([]string, *olsFit, error) {
	var active []int
	for j := range names {
		nonzero := false
		for _, xi := range x {
			if xi[j] != 0 {
				nonzero = true
				break
			}
		}
		if !nonzero {
			continue
		}
		duplicate := false
		for _, k := range active {
			if sameColumn(x, j, k) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			active = append(active, j)
		}
	}
	for len(active) > 0 {
		fit, err := fitOLS(y, x, active)
		if err != nil {
			return nil, nil, err
		}
		worst := -1
		for k, p := range fit.p {
			if p > eliminationAlpha && (worst < 0 || p > fit.p[worst]) {
				worst = k
			}
		}
		if worst < 0 {
			kept := make([]string, len(active))
			for k, j := range active {
				kept[k] = names[j]
			}
			return kept, fit, nil
		}
		active = append(active[:worst], active[worst+1:]...)
	}
	return nil, nil, nil
}

func sameColumn(x [][]float64, j, k int) bool {
	for _, xi := range x {
		if xi[j] != xi[k] {
			return false
		}
	}
	return true
}

type olsFit struct {
	beta  []float64
	se    []float64
	p     []float64
	resid []float64
}

// fitOLS regresses y on the covariate columns cols of x, without an
// intercept. Coefficients come from a Gaussian GLM; standard errors and
// two-sided t-test p-values from σ²(XᵀX)⁻¹.
func fitOLS(y []float64, x [][]float64, cols []int) (fit *olsFit, err error) {
	n, p := len(y), len(cols)
	if n <= p {
		return nil, fmt.Errorf("%w: %d rows for %d covariates", errNoObservations, n, p)
	}
	defer func() {
		if r := recover(); r != nil {
			// typically "matrix singular or near-singular"
			fit, err = nil, fmt.Errorf("regression failed: %v", r)
		}
	}()

	names := make([]string, 0, p+1)
	data := make([][]statmodel.Dtype, 0, p+1)
	names = append(names, "y")
	data = append(data, y)
	design := mat.NewDense(n, p, nil)
	for k, j := range cols {
		series := make([]statmodel.Dtype, n)
		for i := range series {
			series[i] = x[i][j]
			design.Set(i, k, x[i][j])
		}
		data = append(data, series)
		names = append(names, fmt.Sprintf("x%d", k))
	}
	model, err := glm.NewGLM(statmodel.NewDataset(data, names), "y", names[1:], olsConfig)
	if err != nil {
		return nil, err
	}
	beta := append([]float64(nil), model.Fit().Params()...)

	betaVec := mat.NewVecDense(p, beta)
	resid := make([]float64, n)
	var rss float64
	for i := range resid {
		resid[i] = y[i] - mat.Dot(design.RowView(i), betaVec)
		rss += resid[i] * resid[i]
	}
	df := float64(n - p)
	sigma2 := rss / df

	var xtx, inv mat.Dense
	xtx.Mul(design.T(), design)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("design matrix is singular: %w", err)
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	fit = &olsFit{
		beta:  beta,
		se:    make([]float64, p),
		p:     make([]float64, p),
		resid: resid,
	}
	for k := range beta {
		fit.se[k] = math.Sqrt(sigma2 * inv.At(k, k))
		tstat := beta[k] / fit.se[k]
		switch {
		case math.IsNaN(tstat):
			// beta and se both zero: an exact fit with no effect
			fit.p[k] = 1
		default:
			fit.p[k] = 2 * tdist.Survival(math.Abs(tstat))
		}
	}
	return fit, nil
}
