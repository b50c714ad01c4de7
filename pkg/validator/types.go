/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package validator drives the direct_post / direct_post.jwt Authorisation
// Response flow and dispatches per-descriptor VP verification (spec §4.4).
package validator

import "github.com/trustbloc/oidc4vp-verifier/pkg/domain"

// ResponseKind discriminates the AuthorisationResponse variant.
type ResponseKind string

// The two transports a Wallet may use to post its response.
const (
	ResponseKindDirectPost    ResponseKind = "direct_post"
	ResponseKindDirectPostJWT ResponseKind = "direct_post.jwt"
)

// DirectPostForm is the decoded body of a plain direct_post.
type DirectPostForm struct {
	State                   string
	IDToken                 string
	VPToken                 string
	PresentationSubmission  string // raw JSON, spec §6 form field
	Error                   string
	ErrorDescription        string
}

// AuthorisationResponse is DirectPost{to} | DirectPostJwt{state,jarm},
// spec §4.4.
type AuthorisationResponse struct {
	Kind ResponseKind

	// populated when Kind == ResponseKindDirectPost.
	DirectPost *DirectPostForm

	// populated when Kind == ResponseKindDirectPostJWT.
	JARMState    string
	JARMEnvelope string
}

// responseMode maps a response's transport onto the domain.ResponseMode it
// must match (spec §4.4 step 3).
func (r *AuthorisationResponse) responseMode() domain.ResponseMode {
	if r.Kind == ResponseKindDirectPostJWT {
		return domain.ResponseModeDirectPostJWT
	}

	return domain.ResponseModeDirectPost
}

func (r *AuthorisationResponse) state() string {
	if r.Kind == ResponseKindDirectPostJWT {
		return r.JARMState
	}

	if r.DirectPost == nil {
		return ""
	}

	return r.DirectPost.State
}

// Accepted is the result of a successful Submit when
// GetWalletResponseMethod is Redirect (spec §4.4 step 10); empty otherwise.
type Accepted struct {
	RedirectURI string
}
