/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package support holds small helpers shared by the restapi operation
// packages.
package support

import "net/http"

// Handler http handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// HTTPHandler contains REST API handling details which can be used to build
// routers for http requests, for rest server.
type HTTPHandler struct {
	path    string
	method  string
	handle  http.HandlerFunc
}

// NewHTTPHandler returns a new instance of HTTPHandler which can be used
// to handle REST requests.
func NewHTTPHandler(path, method string, handle http.HandlerFunc) *HTTPHandler {
	return &HTTPHandler{path: path, method: method, handle: handle}
}

// Path returns http request path.
func (h *HTTPHandler) Path() string {
	return h.path
}

// Method returns http request method type.
func (h *HTTPHandler) Method() string {
	return h.method
}

// Handle returns http request handle function.
func (h *HTTPHandler) Handle() http.HandlerFunc {
	return h.handle
}
