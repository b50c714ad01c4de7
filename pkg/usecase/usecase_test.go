/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/requestobject"
	"github.com/trustbloc/oidc4vp-verifier/pkg/store"
	"github.com/trustbloc/oidc4vp-verifier/pkg/validator"
)

type stubValidator struct {
	accepted *validator.Accepted
	err      error
}

func (s *stubValidator) Submit(context.Context, *validator.AuthorisationResponse) (*validator.Accepted, error) {
	return s.accepted, s.err
}

func testBuilder(t *testing.T) *requestobject.Builder {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return requestobject.New(requestobject.Config{
		ClientID:                    "https://verifier.example.com",
		ClientIDScheme:              domain.ClientIDSchemePreRegistered,
		PublicURL:                   "https://verifier.example.com",
		SigningKey:                  key,
		SigningAlg:                  jose.RS256,
		DefaultResponseMode:         domain.ResponseModeDirectPost,
		JARMOption:                  domain.JARMOption{Kind: domain.JARMUnsigned},
		RequestJWTEmbed:             domain.EmbedByReference,
		PresentationDefinitionEmbed: domain.EmbedByValue,
	})
}

func TestUseCaseInitTransaction(t *testing.T) {
	s := store.New()

	uc := New(Config{
		Store:     s,
		Builder:   testBuilder(t),
		Validator: &stubValidator{},
	})

	result, err := uc.InitTransaction(requestobject.InitTransactionRequest{
		Type:                    domain.PresentationTypeIDToken,
		GetWalletResponseMethod: domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.TransactionID)

	require.NotNil(t, s.LoadByTransactionID(result.TransactionID))
}

func TestUseCaseGetRequestObject(t *testing.T) {
	s := store.New()

	uc := New(Config{
		Store:     s,
		Builder:   testBuilder(t),
		Validator: &stubValidator{},
	})

	result, err := uc.InitTransaction(requestobject.InitTransactionRequest{
		Type:                    domain.PresentationTypeIDToken,
		GetWalletResponseMethod: domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll},
	})
	require.NoError(t, err)

	p := s.LoadByTransactionID(result.TransactionID)

	t.Run("retrieves and transitions once", func(t *testing.T) {
		jar, err := uc.GetRequestObject(p.RequestID)
		require.NoError(t, err)
		require.NotEmpty(t, jar)

		require.Equal(t, domain.StatusRequestObjectRetrieved, s.LoadByTransactionID(result.TransactionID).Status)
	})

	t.Run("second retrieval fails", func(t *testing.T) {
		_, err := uc.GetRequestObject(p.RequestID)
		require.Error(t, err)
		require.Equal(t, domain.KindInvalidState, domain.KindOf(err))
	})

	t.Run("unknown request id is not found", func(t *testing.T) {
		_, err := uc.GetRequestObject("unknown")
		require.Error(t, err)
		require.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})
}

func TestUseCasePostWalletResponse(t *testing.T) {
	uc := New(Config{
		Store:     store.New(),
		Builder:   testBuilder(t),
		Validator: &stubValidator{accepted: &validator.Accepted{RedirectURI: "https://verifier.example.com/cb?code=abc"}},
	})

	accepted, err := uc.PostWalletResponse(context.Background(), &validator.AuthorisationResponse{
		Kind: validator.ResponseKindDirectPost,
	})
	require.NoError(t, err)
	require.Equal(t, "https://verifier.example.com/cb?code=abc", accepted.RedirectURI)
}

func newSubmittedPresentation(t *testing.T, s *store.Store, method domain.GetWalletResponseMethod) (*domain.Presentation, domain.ResponseCode) {
	t.Helper()

	p, err := domain.NewRequested("tx1", "req1", time.Now(), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
		domain.ResponseModeDirectPost, domain.EmbedByValue, method, "nonce-1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.RetrieveRequestObject(time.Now()))

	code := domain.ResponseCode("")
	if method.IsRedirect() {
		code = "response-code-1"
	}

	require.NoError(t, p.Submit(time.Now(), &domain.WalletResponse{Kind: domain.WalletResponseIDToken, IDToken: "id-token"}, code))

	s.Put(p)

	return p, code
}

func TestUseCaseGetWalletResponse(t *testing.T) {
	t.Run("poll method requires no code", func(t *testing.T) {
		s := store.New()
		p, _ := newSubmittedPresentation(t, s, domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll})

		uc := New(Config{Store: s, Builder: testBuilder(t), Validator: &stubValidator{}})

		view, err := uc.GetWalletResponse(p.ID, "")
		require.NoError(t, err)
		require.Equal(t, "id-token", view.IDToken)
	})

	t.Run("redirect method requires a matching code and consumes it", func(t *testing.T) {
		s := store.New()
		p, code := newSubmittedPresentation(t, s, domain.GetWalletResponseMethod{
			Kind: domain.GetWalletResponseMethodRedirect, URITemplate: "https://verifier.example.com/cb?code={code}",
		})

		uc := New(Config{Store: s, Builder: testBuilder(t), Validator: &stubValidator{}})

		_, err := uc.GetWalletResponse(p.ID, "wrong-code")
		require.Error(t, err)
		require.Equal(t, domain.KindNotFound, domain.KindOf(err))

		view, err := uc.GetWalletResponse(p.ID, code)
		require.NoError(t, err)
		require.Equal(t, "id-token", view.IDToken)

		require.Nil(t, s.LoadByResponseCode(code), "a consumed code must not resolve a second time")
	})

	t.Run("not yet submitted is an invalid state", func(t *testing.T) {
		s := store.New()

		p, err := domain.NewRequested("tx1", "req1", time.Now(), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
			domain.ResponseModeDirectPost, domain.EmbedByValue,
			domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", nil, nil)
		require.NoError(t, err)
		s.Put(p)

		uc := New(Config{Store: s, Builder: testBuilder(t), Validator: &stubValidator{}})

		_, err = uc.GetWalletResponse(p.ID, "")
		require.Error(t, err)
		require.Equal(t, domain.KindInvalidState, domain.KindOf(err))
	})

	t.Run("unknown transaction id is not found", func(t *testing.T) {
		s := store.New()
		uc := New(Config{Store: s, Builder: testBuilder(t), Validator: &stubValidator{}})

		_, err := uc.GetWalletResponse("unknown", "")
		require.Error(t, err)
		require.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})
}

func TestSweeperSweepOnce(t *testing.T) {
	t.Run("times out expired presentations", func(t *testing.T) {
		s := store.New()

		now := time.Now()

		p, err := domain.NewRequested("tx1", "req1", now.Add(-time.Hour), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
			domain.ResponseModeDirectPost, domain.EmbedByValue,
			domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", nil, nil)
		require.NoError(t, err)
		s.Put(p)

		sweeper := NewSweeper(s, s.List, time.Minute, func() time.Time { return now })
		sweeper.sweepOnce()

		require.Equal(t, domain.StatusTimedOut, s.LoadByTransactionID("tx1").Status)
	})

	t.Run("leaves fresh presentations untouched", func(t *testing.T) {
		s := store.New()

		now := time.Now()

		p, err := domain.NewRequested("tx1", "req1", now, domain.PresentationType{Kind: domain.PresentationTypeIDToken},
			domain.ResponseModeDirectPost, domain.EmbedByValue,
			domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", nil, nil)
		require.NoError(t, err)
		s.Put(p)

		sweeper := NewSweeper(s, s.List, time.Minute, func() time.Time { return now })
		sweeper.sweepOnce()

		require.Equal(t, domain.StatusRequested, s.LoadByTransactionID("tx1").Status)
	})

	t.Run("is idempotent across repeated ticks", func(t *testing.T) {
		s := store.New()

		now := time.Now()

		p, err := domain.NewRequested("tx1", "req1", now.Add(-time.Hour), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
			domain.ResponseModeDirectPost, domain.EmbedByValue,
			domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", nil, nil)
		require.NoError(t, err)
		s.Put(p)

		sweeper := NewSweeper(s, s.List, time.Minute, func() time.Time { return now })
		sweeper.sweepOnce()
		sweeper.sweepOnce()

		require.Equal(t, domain.StatusTimedOut, s.LoadByTransactionID("tx1").Status)
	})
}
