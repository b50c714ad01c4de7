/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package domain holds the Presentation lifecycle state machine: the typed
// identifiers, variant types and invariants a verification transaction is
// built from, independent of how it is transported or persisted.
package domain

// TransactionID is the Verifier-facing opaque identifier for a Presentation.
type TransactionID string

// RequestID is the Wallet-facing opaque identifier, carried as the OAuth2
// `state` parameter throughout the flow.
type RequestID string

// ResponseCode is a one-shot handoff token minted only when
// GetWalletResponseMethod is Redirect; consumed at most once.
type ResponseCode string

// IDTokenType distinguishes the subject identifier format requested in an
// id_token, per the OpenID4VP `id_token_type` parameter.
type IDTokenType string

// Supported id_token subject types.
const (
	IDTokenTypeSubjectSigned  IDTokenType = "subject_signed_id_token"
	IDTokenTypeAttesterSigned IDTokenType = "attester_signed_id_token"
)

// ClientIDScheme identifies how the Wallet should authenticate client_id.
// Not detailed in the distilled spec beyond naming verifier.clientIdScheme;
// every JAR needs a concrete value so it is typed here.
type ClientIDScheme string

// Supported client_id_scheme values.
const (
	ClientIDSchemePreRegistered ClientIDScheme = "pre-registered"
	ClientIDSchemeRedirectURI   ClientIDScheme = "redirect_uri"
	ClientIDSchemeX509SANDNS    ClientIDScheme = "x509_san_dns"
	ClientIDSchemeDID           ClientIDScheme = "did"
)
