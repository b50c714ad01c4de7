/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sdjwt verifies a vc+sd-jwt Verifiable Presentation: the Issuer's
// signature over the SD-JWT, the selective disclosures against it, and the
// mandatory key-binding JWT (spec §4.4 step 6).
package sdjwt

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	jose "gopkg.in/square/go-jose.v2"
)

const separator = "~"

// VerifyOptions carries the per-transaction context a key-binding JWT is
// checked against.
type VerifyOptions struct {
	ExpectedNonce    string
	ExpectedAudience string
}

// Verifier checks SD-JWT presentations against a fixed Issuer key.
type Verifier struct {
	issuerKey *ecdsa.PublicKey
}

// New returns a Verifier bound to the Issuer's verification key
// (verifier.issuer.cert, §6).
func New(issuerKey *ecdsa.PublicKey) *Verifier {
	return &Verifier{issuerKey: issuerKey}
}

// Split breaks a combined-format SD-JWT presentation into its issuer-signed
// JWT, disclosures, and optional key-binding JWT. Exported so callers
// needing only the bare issuer-signed JWT (the vc+sd-jwt+zkp format, spec
// §4.4 step 6, "substring before the first '~'") don't duplicate the
// parsing rule.
func Split(token string) (issuerJWT string, disclosures []string, kbJWT string) {
	parts := strings.Split(token, separator)
	issuerJWT = parts[0]

	if len(parts) == 1 {
		return issuerJWT, nil, ""
	}

	rest := parts[1:]
	if token[len(token)-1] == separator[0] {
		return issuerJWT, rest[:len(rest)-1], ""
	}

	return issuerJWT, rest[:len(rest)-1], rest[len(rest)-1]
}

// Verify implements spec §4.4 step 6's vc+sd-jwt branch: the Issuer
// signature must verify, disclosures must match digests embedded in the
// signed payload, and the key-binding JWT must be present and valid.
func (v *Verifier) Verify(token string, opts VerifyOptions) error {
	issuerJWT, disclosures, kbJWT := Split(token)

	payload, err := v.verifyIssuerSignature(issuerJWT)
	if err != nil {
		return fmt.Errorf("issuer signature: %w", err)
	}

	if err := verifyDisclosures(payload, disclosures); err != nil {
		return fmt.Errorf("disclosures: %w", err)
	}

	if kbJWT == "" {
		return fmt.Errorf("key-binding jwt is required but absent")
	}

	if err := v.verifyKeyBinding(payload, kbJWT, opts); err != nil {
		return fmt.Errorf("key binding: %w", err)
	}

	return nil
}

func (v *Verifier) verifyIssuerSignature(issuerJWT string) (map[string]interface{}, error) {
	jws, err := jose.ParseSigned(issuerJWT)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer-signed jwt: %w", err)
	}

	raw, err := jws.Verify(v.issuerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to verify issuer signature: %w", err)
	}

	payload := map[string]interface{}{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse issuer jwt payload: %w", err)
	}

	return payload, nil
}

// verifyDisclosures requires that every disclosure's digest appears
// somewhere in the payload's _sd digest arrays, collected by a recursive
// walk of every nested object and array in the payload.
func verifyDisclosures(payload map[string]interface{}, disclosures []string) error {
	if len(disclosures) == 0 {
		return nil
	}

	digests := collectSDDigests(payload)

	for _, d := range disclosures {
		sum := sha256.Sum256([]byte(d))
		digest := base64.RawURLEncoding.EncodeToString(sum[:])

		if !digests[digest] {
			return fmt.Errorf("disclosure digest %s not found in issuer-signed payload", digest)
		}
	}

	return nil
}

func collectSDDigests(payload map[string]interface{}) map[string]bool {
	digests := make(map[string]bool)

	var walk func(v interface{})
	walk = func(v interface{}) {
		switch val := v.(type) {
		case map[string]interface{}:
			if sd, ok := val["_sd"].([]interface{}); ok {
				for _, d := range sd {
					if s, ok := d.(string); ok {
						digests[s] = true
					}
				}
			}

			for _, nested := range val {
				walk(nested)
			}
		case []interface{}:
			for _, nested := range val {
				walk(nested)
			}
		}
	}

	walk(payload)

	return digests
}

// cnf confirmation claim per RFC 7800, used to locate the holder's public
// key the key-binding JWT must be signed with.
type cnf struct {
	JWK struct {
		Crv string `json:"crv"`
		X   string `json:"x"`
		Y   string `json:"y"`
		Kty string `json:"kty"`
	} `json:"jwk"`
}

func (v *Verifier) verifyKeyBinding(payload map[string]interface{}, kbJWT string, opts VerifyOptions) error {
	cnfRaw, ok := payload["cnf"]
	if !ok {
		return fmt.Errorf("issuer-signed payload has no cnf claim to bind against")
	}

	cnfBytes, err := json.Marshal(cnfRaw)
	if err != nil {
		return fmt.Errorf("failed to marshal cnf claim: %w", err)
	}

	var c cnf
	if err := json.Unmarshal(cnfBytes, &c); err != nil {
		return fmt.Errorf("failed to parse cnf claim: %w", err)
	}

	holderKey, err := ecPublicKeyFromCoords(c.JWK.X, c.JWK.Y)
	if err != nil {
		return fmt.Errorf("failed to decode holder public key: %w", err)
	}

	jws, err := jose.ParseSigned(kbJWT)
	if err != nil {
		return fmt.Errorf("failed to parse key-binding jwt: %w", err)
	}

	raw, err := jws.Verify(holderKey)
	if err != nil {
		return fmt.Errorf("failed to verify key-binding jwt signature: %w", err)
	}

	binding := map[string]interface{}{}
	if err := json.Unmarshal(raw, &binding); err != nil {
		return fmt.Errorf("failed to parse key-binding jwt payload: %w", err)
	}

	if opts.ExpectedNonce != "" && binding["nonce"] != opts.ExpectedNonce {
		return fmt.Errorf("key-binding jwt nonce does not match the presentation's nonce")
	}

	if opts.ExpectedAudience != "" && binding["aud"] != opts.ExpectedAudience {
		return fmt.Errorf("key-binding jwt audience does not match the verifier's client_id")
	}

	return nil
}

func ecPublicKeyFromCoords(x, y string) (*ecdsa.PublicKey, error) {
	xb, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x coordinate: %w", err)
	}

	yb, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: ellipticP256(),
		X:     bigIntFromBytes(xb),
		Y:     bigIntFromBytes(yb),
	}, nil
}
