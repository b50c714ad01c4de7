/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error taxonomy from spec §7. The validator and
// orchestrators thread a single error channel carrying one of these; there
// is no exception-for-control-flow pattern (spec Design Notes).
type ErrorKind string

// Input-shape errors.
const (
	KindMissingState                            ErrorKind = "missing_state"
	KindMissingIDToken                          ErrorKind = "missing_id_token"
	KindMissingVPTokenOrPresentationSubmission  ErrorKind = "missing_vp_token_or_presentation_submission"
	KindInvalidFormat                           ErrorKind = "invalid_format"
)

// Lifecycle errors.
const (
	KindPresentationDefinitionNotFound ErrorKind = "presentation_definition_not_found"
	KindPresentationNotInExpectedState ErrorKind = "presentation_not_in_expected_state"
	KindUnexpectedResponseMode         ErrorKind = "unexpected_response_mode"
	KindExpired                        ErrorKind = "expired"
	KindNotFound                       ErrorKind = "not_found"
	KindInvalidState                   ErrorKind = "invalid_state"
)

// Cryptographic errors.
const (
	KindInvalidJarm         ErrorKind = "invalid_jarm"
	KindIncorrectStateInJarm ErrorKind = "incorrect_state_in_jarm"
	KindInvalidSDJwt        ErrorKind = "invalid_sd_jwt"
	KindInvalidMdoc         ErrorKind = "invalid_mdoc"
	KindInvalidVPToken      ErrorKind = "invalid_vp_token"
)

// Configuration errors (startup only).
const (
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
)

// CoreError is the structured error the validator and orchestrators return.
// The HTTP adapter maps Kind to a status code in one switch (commhttp); the
// Description is safe to show the Wallet/Verifier front-end, never a raw
// crypto library message (spec §7: "avoid leaking verification internals").
type CoreError struct {
	Kind        ErrorKind
	Description string

	// Expected/Actual are populated only for KindUnexpectedResponseMode.
	Expected ResponseMode
	Actual   ResponseMode
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Kind == KindUnexpectedResponseMode {
		return fmt.Sprintf("%s: expected=%s actual=%s", e.Kind, e.Expected, e.Actual)
	}

	if e.Description == "" {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// NewError builds a CoreError with a plain description.
func NewError(kind ErrorKind, description string) *CoreError {
	return &CoreError{Kind: kind, Description: description}
}

// NewUnexpectedResponseModeError builds the one error that carries the
// expected/actual pair named in spec §4.4 step 3.
func NewUnexpectedResponseModeError(expected, actual ResponseMode) *CoreError {
	return &CoreError{Kind: KindUnexpectedResponseMode, Expected: expected, Actual: actual}
}

// KindOf extracts the ErrorKind from err if it is a *CoreError, or the zero
// value otherwise.
func KindOf(err error) ErrorKind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	return ""
}
