package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRatesNotLoaded is returned by conversion before any rate table
	// has been established from cache or a fetch cycle.
	ErrRatesNotLoaded = errors.New("exchange rates not loaded")

	// ErrAllSourcesFailed is returned when no rate source produced a
	// usable table. Fatal to that fetch cycle only.
	ErrAllSourcesFailed = errors.New("all rate sources failed")

	// ErrIncompleteTable marks an aggregation that could not price every
	// supported currency. Publication is all-or-nothing.
	ErrIncompleteTable = errors.New("incomplete rate table")

	// ErrUnknownCurrency is returned for codes outside the supported set.
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrNegativeAmount is returned for conversion amounts below zero.
	ErrNegativeAmount = errors.New("negative amount")

	// ErrRefreshInFlight is returned when a refresh cycle is already running.
	ErrRefreshInFlight = errors.New("refresh already in flight")
)

// SourceError wraps a single source failure (HTTP error, timeout, bad
// body, bad mapping). It is logged and counted at the fetch boundary and
// never escapes it; the cycle continues with the remaining sources.
type SourceError struct {
	Source string
	Err    error
}

// NewSourceError wraps err as a failure of the named source.
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Err: err}
}

func (e *SourceError) Error() string {
	return "source " + e.Source + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// MissingRateError reports a currency that no successful source priced.
// One missing currency fails the whole cycle.
type MissingRateError struct {
	Currency Currency
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no source reported a rate for %s", e.Currency)
}

// Is lets errors.Is(err, ErrIncompleteTable) match.
func (e *MissingRateError) Is(target error) bool {
	return target == ErrIncompleteTable
}

// CacheReadError reports a snapshot that could not be read or parsed.
// Callers recover by treating the cache as absent.
type CacheReadError struct {
	Err error
}

func (e *CacheReadError) Error() string {
	return "cache read: " + e.Err.Error()
}

func (e *CacheReadError) Unwrap() error {
	return e.Err
}
