// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"fmt"
)

// ConfigurationError reports a stage invoked with settings it cannot
// honor: an unknown platform, a platform-gated stage on the wrong
// platform, or a required side table that was not supplied.
type ConfigurationError struct {
	Stage  string
	Cohort string
	Msg    string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return formatStageError("configuration error", e.Stage, e.Cohort, e.Msg, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataIntegrityError reports input data that makes a statistic
// undefined (a plate without pool samples, a singular covariance
// matrix, ...).
type DataIntegrityError struct {
	Stage  string
	Cohort string
	Msg    string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	return formatStageError("data integrity error", e.Stage, e.Cohort, e.Msg, e.Err)
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

func formatStageError(kind, stage, cohort, msg string, err error) string {
	s := kind
	if stage != "" {
		s += " in " + stage
	}
	if cohort != "" {
		s += fmt.Sprintf(" (cohort %s)", cohort)
	}
	s += ": " + msg
	if err != nil {
		s += ": " + err.Error()
	}
	return s
}

func configErrorf(stage, cohort, format string, args ...interface{}) error {
	return &ConfigurationError{Stage: stage, Cohort: cohort, Msg: fmt.Sprintf(format, args...)}
}

func integrityErrorf(stage, cohort, format string, args ...interface{}) error {
	return &DataIntegrityError{Stage: stage, Cohort: cohort, Msg: fmt.Sprintf(format, args...)}
}
