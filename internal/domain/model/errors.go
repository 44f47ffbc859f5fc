package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrMissingTitle      = errors.New("pledge title is required")
	ErrNonPositiveTarget = errors.New("pledge target must be greater than zero")
	ErrEndBeforeStart    = errors.New("pledge end date precedes start date")

	ErrPledgeMismatch    = errors.New("event does not reference its pledge")
	ErrNegativeValue     = errors.New("event value must not be negative")
	ErrBeforePledgeStart = errors.New("event precedes pledge start date")

	ErrEmptyThresholds     = errors.New("threshold set must not be empty")
	ErrUnorderedThresholds = errors.New("threshold boundaries must be strictly increasing")
	ErrUnlabeledThreshold  = errors.New("threshold boundary requires a label")
)
