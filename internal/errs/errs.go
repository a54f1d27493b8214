// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package errs implements the error taxonomy from spec.md §7: every error
// that can escape a component carries a stable machine-readable Kind so the
// decision cache can pick the right decision enum value without string
// matching on error text.
package errs

import "fmt"

// Kind is a stable, machine-readable error classification.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindTransientIndexer  Kind = "transient_indexer"
	KindPermanentIndexer  Kind = "permanent_indexer"
	KindCandidate         Kind = "candidate"
	KindMatchRejection    Kind = "match_rejection"
	KindClient            Kind = "client"
	KindInvariantViolation Kind = "invariant_violation"
)

// Error wraps an underlying error with a stable Kind and an operation label.
type Error struct {
	K    Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.K)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.K, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind reports the error's machine-readable classification.
func (e *Error) Kind() Kind { return e.K }

// New wraps err with kind and op. Returns nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{K: kind, Op: op, Err: err}
}

// As extracts the Kind of err, if err (or something it wraps) is an *Error.
func As(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.K, true
}
