/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jarm decrypts and/or verifies the Wallet's JARM envelope
// (spec §4.4 step 4).
package jarm

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
)

// AuthorisationResponseTO is the inner payload of a JARM envelope, mirroring
// the form fields of a plain direct_post (spec §6).
type AuthorisationResponseTO struct {
	State                   string                          `json:"state"`
	IDToken                 string                          `json:"id_token,omitempty"`
	VPToken                 string                          `json:"vp_token,omitempty"`
	PresentationSubmission  *domain.PresentationSubmission  `json:"presentation_submission,omitempty"`
	Error                   string                          `json:"error,omitempty"`
	ErrorDescription        string                          `json:"error_description,omitempty"`
}

// WalletSigningKeyResolver resolves the public key a Wallet signed a JARM
// envelope with. In the OpenID4VP model this typically comes from the
// Wallet's previously-registered metadata; the core treats it as an
// injected collaborator rather than fetching it itself (out of scope per
// spec §1).
type WalletSigningKeyResolver interface {
	ResolveSigningKey(alg string) (interface{}, error)
}

// Verifier unwraps a JARM envelope per the Presentation's configured
// JARMOption (spec Design Notes: "dispatches on the variant; do not model
// by subclass").
type Verifier struct {
	walletKeys WalletSigningKeyResolver
}

// New returns a Verifier. walletKeys may be nil if no JARMOption in use
// ever signs (encryption-only deployments).
func New(walletKeys WalletSigningKeyResolver) *Verifier {
	return &Verifier{walletKeys: walletKeys}
}

// Unwrap decrypts/verifies jarmJWT per opt, using key when encryption is in
// play. Signature/decryption failure is InvalidJarm; callers are
// responsible for the outer/inner state match check (IncorrectStateInJarm),
// since it requires the outer form's state too.
func (v *Verifier) Unwrap(jarmJWT string, opt domain.JARMOption, key *ecdsa.PrivateKey) (*AuthorisationResponseTO, error) {
	payload := []byte(jarmJWT)

	var err error

	switch opt.Kind {
	case domain.JARMEncrypted:
		payload, err = v.decrypt(jarmJWT, key)
	case domain.JARMSignedAndEncrypted:
		payload, err = v.decrypt(jarmJWT, key)
		if err == nil {
			payload, err = v.verify(string(payload), opt.SigningAlg)
		}
	case domain.JARMSigned:
		payload, err = v.verify(jarmJWT, opt.SigningAlg)
	default:
		return nil, domain.NewError(domain.KindInvalidJarm, "unsigned/unencrypted JARM is not a supported option")
	}

	if err != nil {
		return nil, domain.NewError(domain.KindInvalidJarm, "failed to decrypt or verify jarm envelope")
	}

	to := &AuthorisationResponseTO{}
	if err := json.Unmarshal(payload, to); err != nil {
		return nil, domain.NewError(domain.KindInvalidJarm, "jarm payload is not valid json")
	}

	return to, nil
}

func (v *Verifier) decrypt(jarmJWT string, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("no ephemeral EC private key available to decrypt jarm")
	}

	enc, err := jose.ParseEncrypted(jarmJWT)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jarm jwe: %w", err)
	}

	payload, err := enc.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt jarm jwe: %w", err)
	}

	return payload, nil
}

func (v *Verifier) verify(token string, alg string) ([]byte, error) {
	if v.walletKeys == nil {
		return nil, fmt.Errorf("no wallet signing key resolver configured")
	}

	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jarm jws: %w", err)
	}

	key, err := v.walletKeys.ResolveSigningKey(alg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet signing key: %w", err)
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("failed to verify jarm jws: %w", err)
	}

	return payload, nil
}
