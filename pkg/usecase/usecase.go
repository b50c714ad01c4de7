/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package usecase wires the Presentation Store to the Request-Object
// Builder and the Authorisation Response validator, and implements the
// timeout sweeper (spec §4.2, §4.3, §4.5, §4.6).
package usecase

import (
	"context"
	"time"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/requestobject"
	"github.com/trustbloc/oidc4vp-verifier/pkg/validator"
)

var logger = log.New("oidc4vp-verifier/usecase")

// Store is the subset of pkg/store.Store the use case layer needs.
type Store interface {
	Put(*domain.Presentation)
	LoadByTransactionID(domain.TransactionID) *domain.Presentation
	LoadByRequestID(domain.RequestID) *domain.Presentation
	LoadByResponseCode(domain.ResponseCode) *domain.Presentation
	ConsumeResponseCode(domain.ResponseCode)
	CompareAndSwap(domain.TransactionID, func(*domain.Presentation) (*domain.Presentation, error)) error
}

// Builder is the subset of pkg/requestobject.Builder the use case layer needs.
type Builder interface {
	InitTransaction(req requestobject.InitTransactionRequest, now time.Time) (*domain.Presentation, *requestobject.BuildResult, error)
	Build(p *domain.Presentation) ([]byte, error)
}

// Validator is the subset of pkg/validator.Validator the use case layer needs.
type Validator interface {
	Submit(ctx context.Context, resp *validator.AuthorisationResponse) (*validator.Accepted, error)
}

// WalletResponseView mirrors a stored WalletResponse, returned from
// GetWalletResponse (spec §4.5).
type WalletResponseView struct {
	Kind                   domain.WalletResponseKind
	IDToken                string
	VPToken                string
	PresentationSubmission *domain.PresentationSubmission
	ErrorCode              string
	ErrorDescription       string
}

// Config wires the UseCase's collaborators.
type Config struct {
	Store     Store
	Builder   Builder
	Validator Validator
	MaxAge    time.Duration // verifier.maxAge
	Now       func() time.Time
}

// UseCase implements spec §4.2 (InitTransaction), §4.3 (GetRequestObject)
// and §4.5 (GetWalletResponse); PostWalletResponse delegates straight to the
// injected Validator. The §4.6 sweeper is the separate Sweeper type below.
type UseCase struct {
	cfg Config
}

// New returns a UseCase bound to cfg.
func New(cfg Config) *UseCase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &UseCase{cfg: cfg}
}

// InitTransaction implements spec §4.2: build a fresh Requested
// Presentation, persist it, and return the public-facing result.
func (u *UseCase) InitTransaction(
	req requestobject.InitTransactionRequest,
) (*requestobject.BuildResult, error) {
	p, result, err := u.cfg.Builder.InitTransaction(req, u.cfg.Now())
	if err != nil {
		return nil, err
	}

	u.cfg.Store.Put(p)

	return result, nil
}

// GetRequestObject implements spec §4.3: load by RequestId, gate on
// status, transition at-most-once Requested -> RequestObjectRetrieved, and
// return the signed JAR.
func (u *UseCase) GetRequestObject(requestID domain.RequestID) ([]byte, error) {
	p := u.cfg.Store.LoadByRequestID(requestID)
	if p == nil {
		return nil, domain.NewError(domain.KindNotFound, "unknown request id")
	}

	if p.Status == domain.StatusTimedOut {
		return nil, domain.NewError(domain.KindExpired, "presentation has expired")
	}

	if p.Status != domain.StatusRequested {
		return nil, domain.NewError(domain.KindInvalidState,
			"request object has already been retrieved for this presentation")
	}

	now := u.cfg.Now()

	err := u.cfg.Store.CompareAndSwap(p.ID, func(current *domain.Presentation) (*domain.Presentation, error) {
		if current == nil {
			return nil, domain.NewError(domain.KindNotFound, "unknown request id")
		}

		if current.Status == domain.StatusTimedOut {
			return nil, domain.NewError(domain.KindExpired, "presentation has expired")
		}

		if current.Status != domain.StatusRequested {
			return nil, domain.NewError(domain.KindInvalidState,
				"request object has already been retrieved for this presentation")
		}

		if err := current.RetrieveRequestObject(now); err != nil {
			return nil, err
		}

		return current, nil
	})
	if err != nil {
		return nil, err
	}

	// re-load: the committed record, not the pre-transition snapshot, is
	// what gets signed into the JAR (state = requestId, response_mode, ...
	// are unchanged by the transition but this keeps Build off a stale copy).
	committed := u.cfg.Store.LoadByTransactionID(p.ID)

	jar, err := u.cfg.Builder.Build(committed)
	if err != nil {
		return nil, err
	}

	return jar, nil
}

// GetPresentationDefinition implements the by-reference lookup the Builder
// points a Wallet at when PresentationDefinitionEmbed is EmbedByReference
// (the presentation_definition_uri built in
// pkg/requestobject/requestobject.go's Build). Unlike GetRequestObject this
// is a plain read: a Wallet may re-fetch the definition any number of times
// before submitting, so no status transition happens here.
func (u *UseCase) GetPresentationDefinition(requestID domain.RequestID) (*domain.PresentationDefinition, error) {
	p := u.cfg.Store.LoadByRequestID(requestID)
	if p == nil {
		return nil, domain.NewError(domain.KindNotFound, "unknown request id")
	}

	if p.Type.PresentationDefinition == nil {
		return nil, domain.NewError(domain.KindNotFound, "presentation has no presentation_definition")
	}

	return p.Type.PresentationDefinition, nil
}

// PostWalletResponse implements spec §4.4 by delegating to the injected
// Validator; the HTTP adapter is responsible for shaping the raw form/JARM
// body into a validator.AuthorisationResponse.
func (u *UseCase) PostWalletResponse(
	ctx context.Context, resp *validator.AuthorisationResponse,
) (*validator.Accepted, error) {
	return u.cfg.Validator.Submit(ctx, resp)
}

// GetWalletResponse implements spec §4.5. responseCode is the zero value
// when the Presentation is configured for Poll.
func (u *UseCase) GetWalletResponse(
	transactionID domain.TransactionID, responseCode domain.ResponseCode,
) (*WalletResponseView, error) {
	p := u.cfg.Store.LoadByTransactionID(transactionID)
	if p == nil {
		return nil, domain.NewError(domain.KindNotFound, "unknown transaction id")
	}

	if p.Status != domain.StatusSubmitted {
		return nil, domain.NewError(domain.KindInvalidState, "wallet response is not yet available")
	}

	if p.GetWalletResponseMethod.IsRedirect() {
		if responseCode == "" || responseCode != p.ResponseCode || u.cfg.Store.LoadByResponseCode(responseCode) == nil {
			// indistinguishable from absence, to avoid a presence oracle
			// (spec §4.5).
			return nil, domain.NewError(domain.KindNotFound, "unknown transaction id")
		}

		u.cfg.Store.ConsumeResponseCode(responseCode)
	}

	wr := p.WalletResponse

	return &WalletResponseView{
		Kind:                   wr.Kind,
		IDToken:                wr.IDToken,
		VPToken:                wr.VPToken,
		PresentationSubmission: wr.PresentationSubmission,
		ErrorCode:              wr.ErrorCode,
		ErrorDescription:       wr.ErrorDescription,
	}, nil
}

// Lister enumerates the candidates the sweeper scans. The sweeper is handed
// this snapshot function (pkg/store.Store.List in cmd/verifier-rest) by the
// caller that owns the store, so the Store interface above carries only the
// per-identifier operations.
type Lister func() []*domain.Presentation

// Sweeper implements spec §4.6: a periodic, idempotent, ordering-insensitive
// scan that times out any non-terminal Presentation past its maxAge.
type Sweeper struct {
	store  Store
	list   Lister
	maxAge time.Duration
	now    func() time.Time
}

// NewSweeper returns a Sweeper bound to store, using list to enumerate the
// current Presentations on each tick.
func NewSweeper(store Store, list Lister, maxAge time.Duration, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}

	return &Sweeper{store: store, list: list, maxAge: maxAge, now: now}
}

// Run blocks, ticking every interval until ctx is cancelled. Each tick is
// independent: a sweep that fails partway (e.g. the loser of a race against
// a concurrent PostWalletResponse) leaves every other candidate's
// evaluation unaffected, since TimeOut is idempotent and each transition is
// attempted independently (spec §4.6: "idempotent and ordering-insensitive").
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	now := s.now()

	for _, p := range s.list() {
		if !p.IsExpired(now, s.maxAge) {
			continue
		}

		err := s.store.CompareAndSwap(p.ID, func(current *domain.Presentation) (*domain.Presentation, error) {
			if current == nil {
				return nil, domain.NewError(domain.KindNotFound, "presentation vanished mid-sweep")
			}

			if !current.IsExpired(now, s.maxAge) {
				return current, nil
			}

			current.TimeOut(now, domain.TimeoutReasonExpired)

			return current, nil
		})
		if err != nil {
			logger.Infof("sweeper: skipping presentation %s this tick: %s", p.ID, err)
		}
	}
}
