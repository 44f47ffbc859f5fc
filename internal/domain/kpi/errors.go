package kpi

import "errors"

// Sentinel kinds for KPI evaluation errors.
var (
	// ErrUnknownFormula marks a formula outside the supported set.
	ErrUnknownFormula = errors.New("unknown kpi formula")
	// ErrEmptyScope marks an evaluation request with no pledges in scope.
	ErrEmptyScope = errors.New("kpi scope resolves to no pledges")
)
