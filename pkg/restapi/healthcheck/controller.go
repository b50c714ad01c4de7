/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package healthcheck exposes a liveness endpoint.
package healthcheck

import (
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi/healthcheck/operation"
)

// New returns a new Controller instance.
func New() *Controller {
	var allHandlers []restapi.Handler

	svc := operation.New()

	allHandlers = append(allHandlers, svc.GetRESTHandlers()...)

	return &Controller{handlers: allHandlers}
}

// Controller contains handlers for controller.
type Controller struct {
	handlers []restapi.Handler
}

// GetOperations returns all controller endpoints.
func (c *Controller) GetOperations() []restapi.Handler {
	return c.handlers
}
