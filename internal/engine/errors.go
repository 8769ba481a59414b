package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/sheetrelay/internal/route"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeUnknownRoute indicates a route id the registry does not declare.
	CodeUnknownRoute ErrorCode = "UNKNOWN_ROUTE"

	// CodeUnknownSheet indicates a sheet id no module declares.
	CodeUnknownSheet ErrorCode = "UNKNOWN_SHEET"

	// CodeNotFactSheet indicates an append aimed at a match or summary sheet.
	CodeNotFactSheet ErrorCode = "NOT_FACT_SHEET"

	// CodeStore indicates the durable log rejected a read or write.
	CodeStore ErrorCode = "STORE"
)

var (
	// ErrUnknownRoute matches CodeUnknownRoute errors.
	ErrUnknownRoute = route.ErrUnknownRoute

	// ErrUnknownSheet matches CodeUnknownSheet errors.
	ErrUnknownSheet = errors.New("unknown sheet")

	// ErrNotFactSheet matches CodeNotFactSheet errors.
	ErrNotFactSheet = errors.New("not a fact sheet")

	// ErrStore matches CodeStore errors.
	ErrStore = errors.New("store failure")
)

// Error is an engine failure with a stable code.
type Error struct {
	Code    ErrorCode
	Message string
	SheetID string
	RouteID string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.RouteID != "":
		msg += fmt.Sprintf(" (route=%s)", e.RouteID)
	case e.SheetID != "":
		msg += fmt.Sprintf(" (sheet=%s)", e.SheetID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeUnknownRoute:
		return target == ErrUnknownRoute
	case CodeUnknownSheet:
		return target == ErrUnknownSheet
	case CodeNotFactSheet:
		return target == ErrNotFactSheet
	case CodeStore:
		return target == ErrStore
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func unknownSheet(id string) *Error {
	return &Error{Code: CodeUnknownSheet, Message: "sheet not declared by any module", SheetID: id}
}

func storeError(op string, err error) *Error {
	return &Error{Code: CodeStore, Message: op, Err: err}
}
