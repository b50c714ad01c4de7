/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package zkp verifies the zero-knowledge-proof challenge wrapped around a
// vc+sd-jwt+zkp or mso_mdoc+zkp Verifiable Presentation (spec §4.4 step 6).
// A ZKP proves possession of a credential without revealing its signature;
// the Verifier checks a challenge keyed per input descriptor rather than
// verifying a signature directly.
package zkp

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// ChallengeFormat names which wire format the challenge was computed over.
type ChallengeFormat string

// Supported challenge formats, per spec §4.4 step 6.
const (
	FormatSDJWT   ChallengeFormat = "SDJWT"
	FormatMsoMdoc ChallengeFormat = "MSOMDOC"
)

// Verifier verifies a ZKP challenge against a descriptor-specific public
// key. Implementations are pluggable (spec Design Notes, §4.4): the
// validator only needs Verify.
type Verifier interface {
	Verify(key *ecdsa.PublicKey, format ChallengeFormat, encodedCredential string, nonce string) (bool, error)
}

const proofSeparator = "."

// ChallengeVerifier is the default Verifier: the credential's trailing
// ".<base64url r||s>" segment must be an ECDSA signature, by the
// descriptor's registered public key, over a Fiat-Shamir-style challenge
// digest of (format, nonce, credential-without-proof).
type ChallengeVerifier struct{}

// NewChallengeVerifier returns the default Verifier.
func NewChallengeVerifier() *ChallengeVerifier {
	return &ChallengeVerifier{}
}

// Verify implements Verifier.
func (c *ChallengeVerifier) Verify(
	key *ecdsa.PublicKey, format ChallengeFormat, encodedCredential string, nonce string,
) (bool, error) {
	idx := strings.LastIndex(encodedCredential, proofSeparator)
	if idx < 0 {
		return false, fmt.Errorf("zkp credential has no proof segment")
	}

	credential, proof := encodedCredential[:idx], encodedCredential[idx+len(proofSeparator):]

	sig, err := base64.RawURLEncoding.DecodeString(proof)
	if err != nil {
		return false, fmt.Errorf("failed to decode zkp proof: %w", err)
	}

	if len(sig) != 64 {
		return false, nil
	}

	challenge := sha256.Sum256([]byte(string(format) + "|" + nonce + "|" + credential))

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	return ecdsa.Verify(key, challenge[:], r, s), nil
}
