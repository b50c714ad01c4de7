/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package operation implements the liveness endpoint cmd/verifier-rest
// exposes alongside the OpenID4VP surface.
package operation

import (
	"net/http"

	"github.com/trustbloc/oidc4vp-verifier/pkg/internal/common/support"
	commhttp "github.com/trustbloc/oidc4vp-verifier/pkg/restapi/internal/common/http"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi"
)

const healthCheckEndpoint = "/healthcheck"

// HealthCheckResp respresents a health check response.
type HealthCheckResp struct {
	Status string `json:"status"`
}

// Operation defines handlers for the healthcheck service.
type Operation struct{}

// New returns a new healthcheck Operation.
func New() *Operation {
	return &Operation{}
}

// GetRESTHandlers get all controller API handler available for this service.
func (o *Operation) GetRESTHandlers() []restapi.Handler {
	return []restapi.Handler{
		support.NewHTTPHandler(healthCheckEndpoint, http.MethodGet, o.healthCheckHandler),
	}
}

func (o *Operation) healthCheckHandler(rw http.ResponseWriter, _ *http.Request) {
	commhttp.WriteResponse(rw, HealthCheckResp{Status: "success"})
}
