/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

import (
	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
)

// InitTransactionRequestTO is the JSON body of POST /ui/presentations.
type InitTransactionRequestTO struct {
	Type                    string                         `json:"type"`
	IDTokenType             string                         `json:"id_token_type,omitempty"`
	PresentationDefinition  *domain.PresentationDefinition `json:"presentation_definition,omitempty"`
	ResponseMode            string                         `json:"response_mode,omitempty"`
	GetWalletResponseMethod string                         `json:"get_wallet_response_method,omitempty"`
	RedirectURITemplate     string                         `json:"redirect_uri_template,omitempty"`
	Nonce                   string                         `json:"nonce,omitempty"`
	// ZKPKeys maps an input-descriptor id to the EC JWK used to verify that
	// descriptor's zero-knowledge proof (vc+sd-jwt+zkp / mso_mdoc+zkp).
	ZKPKeys map[string]jose.JSONWebKey `json:"zkp_keys,omitempty"`
}

// InitTransactionResponseTO is the JSON response body of POST /ui/presentations.
type InitTransactionResponseTO struct {
	TransactionID          string                          `json:"transaction_id"`
	RequestURI              string                         `json:"request_uri"`
	PresentationDefinition  *domain.PresentationDefinition  `json:"presentation_definition,omitempty"`
}

// WalletResponseTO is the JSON response body of
// GET /ui/presentations/{transactionId}.
type WalletResponseTO struct {
	IDToken                 string                          `json:"id_token,omitempty"`
	VPToken                 string                          `json:"vp_token,omitempty"`
	PresentationSubmission  *domain.PresentationSubmission  `json:"presentation_submission,omitempty"`
	Error                   string                          `json:"error,omitempty"`
	ErrorDescription        string                          `json:"error_description,omitempty"`
}

// AcceptedTO is the JSON response body of a successful direct_post(.jwt)
// that used the Redirect get-wallet-response method.
type AcceptedTO struct {
	RedirectURI string `json:"redirect_uri"`
}
