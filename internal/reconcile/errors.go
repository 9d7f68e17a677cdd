package reconcile

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes reconciliation failures.
type ErrorCode string

const (
	// CodeGroupingNotFound indicates the grouping reference did not resolve.
	CodeGroupingNotFound ErrorCode = "GROUPING_NOT_FOUND"

	// CodeInvalidGrouping indicates the grouping cannot be compiled.
	CodeInvalidGrouping ErrorCode = "INVALID_GROUPING"

	// CodeLockFailure indicates the per-grouping lock could not be taken.
	CodeLockFailure ErrorCode = "LOCK_FAILURE"

	// CodeStoreFailure indicates a statement, begin or commit failed.
	CodeStoreFailure ErrorCode = "STORE_FAILURE"
)

// Run steps reported in Error.Step.
const (
	StepResolve = "resolve"
	StepPlan    = "plan"
	StepLock    = "lock"
	StepBegin   = "begin"
	StepDelete  = "delete"
	StepInsert  = "insert"
	StepCommit  = "commit"
)

// Error reports a failed run. It wraps the underlying cause, so errors.Is
// works with grouping.ErrGroupingNotFound, grouping.ErrInvalidGrouping and
// driver errors.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// GroupingID identifies the affected grouping.
	GroupingID int64

	// Step is the run step that failed.
	Step string

	// Err is the cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: grouping %d: %s: %v", e.Code, e.GroupingID, e.Step, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of a wrapped *Error, or "" if err is not one.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsNotFound reports whether err is a grouping-not-found failure.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeGroupingNotFound
}

// IsInvalid reports whether err is an invalid-grouping failure.
func IsInvalid(err error) bool {
	return CodeOf(err) == CodeInvalidGrouping
}

// IsStoreFailure reports whether err is a store failure.
func IsStoreFailure(err error) bool {
	return CodeOf(err) == CodeStoreFailure
}
