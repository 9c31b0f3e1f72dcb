package service

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the machine readable reason attached to every rejection.
type Code string

const (
	CodeMissingFields        Code = "MISSING_FIELDS"
	CodeInvalidTimestamp     Code = "INVALID_TIMESTAMP"
	CodeOngoingSessionExists Code = "ONGOING_SESSION_EXISTS"
	CodeCardsUnavailable     Code = "CARDS_UNAVAILABLE"
	CodeInvalidPattern       Code = "INVALID_PATTERN"
	CodeNotFound             Code = "NOT_FOUND"
	CodePersistenceFailure   Code = "PERSISTENCE_FAILURE"
	CodeInternal             Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Fields  []string // set for MISSING_FIELDS
	CardIDs []string // set for CARDS_UNAVAILABLE
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf reports the code carried by err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func missingFields(fields []string) *Error {
	return &Error{
		Code:    CodeMissingFields,
		Message: "Missing required fields: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func cardsUnavailable(ids []string) *Error {
	return &Error{
		Code:    CodeCardsUnavailable,
		Message: fmt.Sprintf("IDs %s are not available", strings.Join(ids, ", ")),
		CardIDs: ids,
	}
}

func persistence(op string, err error) *Error {
	return &Error{Code: CodePersistenceFailure, Message: op, Err: err}
}

func notFound(msg string, err error) *Error {
	return &Error{Code: CodeNotFound, Message: msg, Err: err}
}
