/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mdoc verifies an ISO 18013-5 mso_mdoc Verifiable Presentation:
// base64url/CBOR decoding, COSE_Sign1 issuer-signature verification, and
// the VALIDITY and DOC_TYPE checks against the Mobile Security Object
// (spec §4.4 step 6).
package mdoc

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// coseSign1 mirrors the 4-element COSE_Sign1 array: [protected, unprotected, payload, signature].
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// issuerSigned is the IssuerSigned structure of one mdoc document.
type issuerSigned struct {
	NameSpaces cbor.RawMessage `cbor:"nameSpaces"`
	IssuerAuth coseSign1       `cbor:"issuerAuth"`
}

// document is one element of the top-level "documents" list.
type document struct {
	DocType      string       `cbor:"docType"`
	IssuerSigned issuerSigned `cbor:"issuerSigned"`
}

type container struct {
	Documents []cbor.RawMessage `cbor:"documents"`
}

type validityInfo struct {
	Signed      time.Time `cbor:"signed"`
	ValidFrom   time.Time `cbor:"validFrom"`
	ValidUntil  time.Time `cbor:"validUntil"`
}

// mobileSecurityObject is the signed payload of issuerAuth.
type mobileSecurityObject struct {
	DocType      string       `cbor:"docType"`
	ValidityInfo validityInfo `cbor:"validityInfo"`
}

// Verifier checks mDoc documents against a fixed Issuer key.
type Verifier struct {
	issuerKey  *ecdsa.PublicKey
	now        func() time.Time
	expectType string
}

// New returns a Verifier bound to the Issuer's verification key
// (verifier.issuer.cert, §6) and the expected docType.
func New(issuerKey *ecdsa.PublicKey, expectDocType string) *Verifier {
	return &Verifier{issuerKey: issuerKey, now: time.Now, expectType: expectDocType}
}

// Documents base64url-decodes token, parses it as a CBOR map, and returns
// the raw (still CBOR-encoded) "documents" entries, per spec §4.4 step 6's
// "require top-level documents list of CBOR maps".
func Documents(token string) ([]cbor.RawMessage, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// some wallets pad the value; fall back to standard encoding.
		raw, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return nil, fmt.Errorf("failed to base64url-decode mdoc token: %w", err)
		}
	}

	var c container

	if err := cbor.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse mdoc cbor container: %w", err)
	}

	if len(c.Documents) == 0 {
		return nil, fmt.Errorf("mdoc container has no documents")
	}

	return c.Documents, nil
}

// ReEncodeDocument base64url-encodes a single document's raw CBOR bytes, as
// the mso_mdoc+zkp branch of spec §4.4 step 6 requires ("re-encode that
// document alone as base64url CBOR") before handing it to the ZKP
// challenge verifier.
func ReEncodeDocument(doc cbor.RawMessage) string {
	return base64.RawURLEncoding.EncodeToString(doc)
}

// Verify implements spec §4.4 step 6's mso_mdoc branch over every document
// in the container: ISSUER_SIGNATURE ∧ VALIDITY ∧ DOC_TYPE, short-circuiting
// on the first failing document.
func (v *Verifier) Verify(token string) error {
	docs, err := Documents(token)
	if err != nil {
		return err
	}

	for i, raw := range docs {
		if err := v.verifyDocument(raw); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}

	return nil
}

func (v *Verifier) verifyDocument(raw cbor.RawMessage) error {
	var doc document
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse mdoc document: %w", err)
	}

	if err := verifyIssuerSignature(doc.IssuerSigned.IssuerAuth, v.issuerKey); err != nil {
		return fmt.Errorf("issuer signature: %w", err)
	}

	var mso mobileSecurityObject
	if err := cbor.Unmarshal(doc.IssuerSigned.IssuerAuth.Payload, &mso); err != nil {
		return fmt.Errorf("failed to parse mobile security object: %w", err)
	}

	if v.expectType != "" && mso.DocType != v.expectType {
		return fmt.Errorf("doc type mismatch: mso declares %q, expected %q", mso.DocType, v.expectType)
	}

	if mso.DocType != doc.DocType {
		return fmt.Errorf("doc type mismatch between mso (%q) and document (%q)", mso.DocType, doc.DocType)
	}

	now := v.now()
	if now.Before(mso.ValidityInfo.ValidFrom) || now.After(mso.ValidityInfo.ValidUntil) {
		return fmt.Errorf("mobile security object is not within its validity window")
	}

	return nil
}

// sigStructure builds the COSE "Signature1" structure that was signed, per
// RFC 8152 §4.4.
func sigStructure(protected, payload []byte) ([]byte, error) {
	return cbor.Marshal([]interface{}{
		"Signature1",
		protected,
		[]byte{},
		payload,
	})
}

func verifyIssuerSignature(sign1 coseSign1, key *ecdsa.PublicKey) error {
	if len(sign1.Signature) != 64 {
		return fmt.Errorf("unexpected ES256 signature length %d", len(sign1.Signature))
	}

	toBeSigned, err := sigStructure(sign1.Protected, sign1.Payload)
	if err != nil {
		return fmt.Errorf("failed to build sig_structure: %w", err)
	}

	digest := sha256.Sum256(toBeSigned)

	r := new(big.Int).SetBytes(sign1.Signature[:32])
	s := new(big.Int).SetBytes(sign1.Signature[32:])

	if !ecdsa.Verify(key, digest[:], r, s) {
		return fmt.Errorf("issuer signature verification failed")
	}

	return nil
}
