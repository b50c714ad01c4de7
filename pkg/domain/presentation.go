/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"crypto/ecdsa"
	"time"

	"github.com/pkg/errors"
)

// Presentation is the tagged variant described in spec §3. It is modeled as
// one struct carrying the superset of fields any state needs, gated by
// Status, rather than a class hierarchy: state is data, transitions are
// total functions (Status, Event) -> (Status, error).
type Presentation struct {
	ID                         TransactionID
	RequestID                  RequestID
	InitiatedAt                time.Time
	Type                       PresentationType
	ResponseMode               ResponseMode
	PresentationDefinitionMode EmbedMode
	GetWalletResponseMethod    GetWalletResponseMethod
	Nonce                      string

	// EphemeralECPrivateKey is present iff ResponseMode == DirectPostJWT (I3).
	EphemeralECPrivateKey *ecdsa.PrivateKey

	// ZKPKeys maps an input-descriptor id to the public key used to verify
	// that descriptor's ZKP challenge (I5), when the request uses a ZKP
	// format. Nil when no descriptor uses one.
	ZKPKeys map[string]*ecdsa.PublicKey

	Status PresentationStatus

	// set on RequestObjectRetrieved and later.
	RequestObjectRetrievedAt time.Time

	// set on Submitted.
	SubmittedAt    time.Time
	WalletResponse *WalletResponse
	ResponseCode   ResponseCode // present iff GetWalletResponseMethod == Redirect (I4).

	// set on TimedOut.
	TimedOutReason TimeoutReason
	TimedOutAt     time.Time
}

// EmbedMode is ByValue vs ByReference, used independently for the JAR
// itself (verifier.requestJwt.embed) and for the embedded/by-reference
// presentation_definition (verifier.presentationDefinition.embed).
type EmbedMode string

// Supported embed modes.
const (
	EmbedByValue     EmbedMode = "by_value"
	EmbedByReference EmbedMode = "by_reference"
)

// NewRequested constructs a freshly-initiated Presentation. Invariant I3 is
// enforced here: callers must supply ephemeralKey exactly when
// responseMode is DirectPostJWT.
func NewRequested(
	id TransactionID,
	requestID RequestID,
	now time.Time,
	typ PresentationType,
	responseMode ResponseMode,
	pdMode EmbedMode,
	method GetWalletResponseMethod,
	nonce string,
	ephemeralKey *ecdsa.PrivateKey,
	zkpKeys map[string]*ecdsa.PublicKey,
) (*Presentation, error) {
	needsKey := responseMode == ResponseModeDirectPostJWT
	if needsKey != (ephemeralKey != nil) {
		return nil, errors.New("invariant I3 violated: ephemeral EC key presence must match DirectPostJwt response mode")
	}

	if method.Kind == GetWalletResponseMethodRedirect && method.URITemplate == "" {
		return nil, errors.New("redirect get-wallet-response method requires a uri template")
	}

	return &Presentation{
		ID:                         id,
		RequestID:                  requestID,
		InitiatedAt:                now,
		Type:                       typ,
		ResponseMode:               responseMode,
		PresentationDefinitionMode: pdMode,
		GetWalletResponseMethod:    method,
		Nonce:                      nonce,
		EphemeralECPrivateKey:      ephemeralKey,
		ZKPKeys:                    zkpKeys,
		Status:                     StatusRequested,
	}, nil
}

// RetrieveRequestObject transitions Requested -> RequestObjectRetrieved.
// At-most-once: calling it twice, or on any other status, is an error.
func (p *Presentation) RetrieveRequestObject(now time.Time) error {
	if p.Status != StatusRequested {
		return errors.Errorf("cannot retrieve request object from status %s", p.Status)
	}

	p.Status = StatusRequestObjectRetrieved
	p.RequestObjectRetrievedAt = now

	return nil
}

// Submit transitions RequestObjectRetrieved -> Submitted. code must be the
// zero value unless GetWalletResponseMethod is Redirect (I4).
func (p *Presentation) Submit(now time.Time, wr *WalletResponse, code ResponseCode) error {
	if p.Status != StatusRequestObjectRetrieved {
		return errors.Errorf("cannot submit wallet response from status %s", p.Status)
	}

	hasCode := code != ""
	if hasCode != p.GetWalletResponseMethod.IsRedirect() {
		return errors.New("invariant I4 violated: response code presence must match redirect method")
	}

	p.Status = StatusSubmitted
	p.SubmittedAt = now
	p.WalletResponse = wr
	p.ResponseCode = code

	return nil
}

// TimeOut transitions any non-terminal status to TimedOut. Idempotent:
// calling it again on an already-TimedOut Presentation is a no-op.
func (p *Presentation) TimeOut(now time.Time, reason TimeoutReason) {
	if p.Status == StatusTimedOut || p.Status == StatusSubmitted {
		return
	}

	p.Status = StatusTimedOut
	p.TimedOutReason = reason
	p.TimedOutAt = now
}

// IsExpired reports whether now - InitiatedAt >= maxAge and the
// Presentation has not yet reached a state the sweeper leaves alone.
func (p *Presentation) IsExpired(now time.Time, maxAge time.Duration) bool {
	if p.Status == StatusSubmitted || p.Status == StatusTimedOut {
		return false
	}

	return now.Sub(p.InitiatedAt) >= maxAge
}

// Clone returns a shallow copy safe for a caller to mutate without
// affecting the store's record (store ownership, spec §3 "Ownership").
func (p *Presentation) Clone() *Presentation {
	cp := *p

	return &cp
}
