/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package restapi defines the Handler type every operation package
// implements, and nothing else: route registration lives with the
// individual controllers (pkg/restapi/verifier, pkg/restapi/healthcheck).
package restapi

import "net/http"

// Handler http handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}
