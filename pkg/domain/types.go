/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package domain

// ResponseMode is the transport discipline for the Wallet's Authorisation
// Response.
type ResponseMode string

// Supported response modes.
const (
	ResponseModeDirectPost    ResponseMode = "direct_post"
	ResponseModeDirectPostJWT ResponseMode = "direct_post.jwt"
)

// GetWalletResponseMethodKind discriminates the GetWalletResponseMethod variant.
type GetWalletResponseMethodKind string

// Supported get-wallet-response methods.
const (
	GetWalletResponseMethodPoll     GetWalletResponseMethodKind = "poll"
	GetWalletResponseMethodRedirect GetWalletResponseMethodKind = "redirect"
)

// GetWalletResponseMethod is Poll | Redirect{uriTemplate}. The Redirect
// template contains a single "{code}" placeholder for the ResponseCode.
type GetWalletResponseMethod struct {
	Kind        GetWalletResponseMethodKind
	URITemplate string
}

// IsRedirect reports whether the method is Redirect.
func (m GetWalletResponseMethod) IsRedirect() bool {
	return m.Kind == GetWalletResponseMethodRedirect
}

// Expand substitutes code into the single "{code}" placeholder.
func (m GetWalletResponseMethod) Expand(code ResponseCode) string {
	const placeholder = "{code}"

	out := make([]byte, 0, len(m.URITemplate))

	for i := 0; i < len(m.URITemplate); {
		if i+len(placeholder) <= len(m.URITemplate) && m.URITemplate[i:i+len(placeholder)] == placeholder {
			out = append(out, []byte(string(code))...)
			i += len(placeholder)

			continue
		}

		out = append(out, m.URITemplate[i])
		i++
	}

	return string(out)
}

// PresentationTypeKind discriminates the PresentationType variant.
type PresentationTypeKind string

// Supported presentation types.
const (
	PresentationTypeIDToken      PresentationTypeKind = "id_token"
	PresentationTypeVPToken      PresentationTypeKind = "vp_token"
	PresentationTypeIDAndVPToken PresentationTypeKind = "vp_token id_token"
)

// PresentationType is IdTokenRequest{idTokenType} | VpTokenRequest{presentationDefinition} |
// IdAndVpToken{idTokenType, presentationDefinition}, fixed at initiation.
type PresentationType struct {
	Kind                   PresentationTypeKind
	IDTokenType            IDTokenType
	PresentationDefinition *PresentationDefinition
}

// RequiresIDToken reports whether this type requires an id_token in the response.
func (t PresentationType) RequiresIDToken() bool {
	return t.Kind == PresentationTypeIDToken || t.Kind == PresentationTypeIDAndVPToken
}

// RequiresVPToken reports whether this type requires a vp_token in the response.
func (t PresentationType) RequiresVPToken() bool {
	return t.Kind == PresentationTypeVPToken || t.Kind == PresentationTypeIDAndVPToken
}

// JARMOptionKind discriminates the JARMOption sum type. Dispatch on this,
// never on a type hierarchy (see spec Design Notes).
type JARMOptionKind string

// Supported JARM options.
const (
	JARMUnsigned           JARMOptionKind = "unsigned"
	JARMSigned             JARMOptionKind = "signed"
	JARMEncrypted          JARMOptionKind = "encrypted"
	JARMSignedAndEncrypted JARMOptionKind = "signed_and_encrypted"
)

// JARMOption is Unsigned | Signed{alg} | Encrypted{alg,enc} | SignedAndEncrypted{alg,enc}.
//
// Only Signed, Encrypted and SignedAndEncrypted are valid with
// ResponseModeDirectPostJWT: an unsigned, unencrypted JARM envelope adds no
// integrity the plain direct_post transport didn't already have, so
// Unsigned combined with DirectPostJwt is rejected at InitTransaction time
// with InvalidConfiguration.
type JARMOption struct {
	Kind          JARMOptionKind
	SigningAlg    string
	EncryptionAlg string
	EncryptionEnc string
}

// PresentationStatus is the tag of the Presentation variant.
type PresentationStatus string

// The four lifecycle states. Transitions never reverse:
// Requested -> RequestObjectRetrieved -> Submitted, with TimedOut reachable
// as a terminal leaf from either Requested or RequestObjectRetrieved.
const (
	StatusRequested              PresentationStatus = "requested"
	StatusRequestObjectRetrieved PresentationStatus = "request_object_retrieved"
	StatusSubmitted              PresentationStatus = "submitted"
	StatusTimedOut               PresentationStatus = "timed_out"
)

// TimeoutReason names why a Presentation moved to TimedOut.
type TimeoutReason string

// TimeoutReasonExpired is the only reason the sweeper assigns today.
const TimeoutReasonExpired TimeoutReason = "expired"
