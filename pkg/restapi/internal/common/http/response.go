/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package http holds the small set of response-writing helpers every
// restapi operation package uses, so error/body shaping is consistent
// across endpoints (spec §7: "validation errors are surfaced to the HTTP
// adapter as 400 with a structured { error, description? } payload").
package http

import (
	"encoding/json"
	"net/http"

	"github.com/trustbloc/edge-core/pkg/log"
)

var logger = log.New("oidc4vp-verifier/restapi")

// ErrorResponse is the structured body of a non-2xx response, per spec §7.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteErrorResponse writes a generic error response with the given status
// code and description only (no structured kind).
func WriteErrorResponse(rw http.ResponseWriter, status int, msg string) {
	WriteErrorResponseWithLog(rw, status, msg, "")
}

// WriteErrorResponseWithLog writes an error response and logs msg under
// the given kind, when kind is non-empty.
func WriteErrorResponseWithLog(rw http.ResponseWriter, status int, msg, kind string) {
	if kind != "" {
		logger.Infof("%s: %s", kind, msg)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	err := json.NewEncoder(rw).Encode(ErrorResponse{Error: kind, Description: msg})
	if err != nil {
		logger.Errorf("unable to write error response: %s", err)
	}
}

// WriteResponse writes v as a JSON 200 response.
func WriteResponse(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(rw).Encode(v)
	if err != nil {
		logger.Errorf("unable to write response: %s", err)
	}
}

// WriteResponseWithLog writes v as a JSON response with the given status
// code.
func WriteResponseWithLog(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	err := json.NewEncoder(rw).Encode(v)
	if err != nil {
		logger.Errorf("unable to write response: %s", err)
	}
}
