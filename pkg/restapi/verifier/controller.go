/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verifier wires pkg/restapi/verifier/operation into a Controller,
// the shape cmd/verifier-rest mounts onto its router.
package verifier

import (
	"fmt"

	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi/verifier/operation"
)

// New returns a new Controller instance.
func New(config *operation.Config) (*Controller, error) {
	var allHandlers []restapi.Handler

	verifierService, err := operation.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init operations: %w", err)
	}

	allHandlers = append(allHandlers, verifierService.GetRESTHandlers()...)

	return &Controller{handlers: allHandlers}, nil
}

// Controller contains handlers for controller.
type Controller struct {
	handlers []restapi.Handler
}

// GetOperations returns all controller endpoints.
func (c *Controller) GetOperations() []restapi.Handler {
	return c.handlers
}
