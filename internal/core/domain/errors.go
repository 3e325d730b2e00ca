package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDays      = errors.New("invalid days: at least one weekday must be selected")
	ErrInvalidRange     = errors.New("invalid range: 'to' must be greater than 'from' within a day")
	ErrConflictingRule  = errors.New("conflicting rule")
	ErrUnknownSerial    = errors.New("unknown rule serial")
	ErrTransportFailure = errors.New("transport failure")
	ErrUnknownPush      = errors.New("unknown push topic")
	ErrMalformedPush    = errors.New("malformed push payload")
)

// ConflictError несет правило, с которым пересекается кандидат
type ConflictError struct {
	Rule Rule
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: overlaps rule #%d (%v %02d-%02d)", ErrConflictingRule, e.Rule.Serial, e.Rule.Days, e.Rule.From, e.Rule.To)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflictingRule
}

// TransportError - неудачная отправка команды после всех попыток.
// Локальный набор правил при этом не откатывается.
type TransportError struct {
	Command  CommandType
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", ErrTransportFailure, e.Command, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransportFailure, e.Err}
}
