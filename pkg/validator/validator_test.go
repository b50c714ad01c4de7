/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package validator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/jarm"
	"github.com/trustbloc/oidc4vp-verifier/pkg/store"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/mdoc"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/sdjwt"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/zkp"
)

type stubJARM struct {
	to  *jarm.AuthorisationResponseTO
	err error
}

func (s *stubJARM) Unwrap(string, domain.JARMOption, *ecdsa.PrivateKey) (*jarm.AuthorisationResponseTO, error) {
	return s.to, s.err
}

type stubZKP struct {
	ok  bool
	err error
}

func (s *stubZKP) Verify(*ecdsa.PublicKey, zkp.ChallengeFormat, string, string) (bool, error) {
	return s.ok, s.err
}

func newIDTokenPresentation(t *testing.T, s *store.Store, method domain.GetWalletResponseMethod) *domain.Presentation {
	t.Helper()

	p, err := domain.NewRequested("tx1", "req1", time.Now(), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
		domain.ResponseModeDirectPost, domain.EmbedByValue, method, "nonce-1", nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.RetrieveRequestObject(time.Now()))

	s.Put(p)

	return p
}

func TestValidatorSubmitIDToken(t *testing.T) {
	t.Run("happy path with poll method returns nothing", func(t *testing.T) {
		s := store.New()
		newIDTokenPresentation(t, s, domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll})

		v := New(Config{
			Store: s,
			JARM:  &stubJARM{},
		})

		accepted, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind: ResponseKindDirectPost,
			DirectPost: &DirectPostForm{
				State:   "req1",
				IDToken: "some.id.token",
			},
		})
		require.NoError(t, err)
		require.Nil(t, accepted)

		require.Equal(t, domain.StatusSubmitted, s.LoadByTransactionID("tx1").Status)
	})

	t.Run("redirect method allocates a response code", func(t *testing.T) {
		s := store.New()
		newIDTokenPresentation(t, s, domain.GetWalletResponseMethod{
			Kind: domain.GetWalletResponseMethodRedirect, URITemplate: "https://verifier.example.com/cb?code={code}",
		})

		v := New(Config{Store: s, JARM: &stubJARM{}})

		accepted, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind:       ResponseKindDirectPost,
			DirectPost: &DirectPostForm{State: "req1", IDToken: "some.id.token"},
		})
		require.NoError(t, err)
		require.NotNil(t, accepted)
		require.Contains(t, accepted.RedirectURI, "https://verifier.example.com/cb?code=")
	})

	t.Run("missing state is rejected", func(t *testing.T) {
		s := store.New()
		v := New(Config{Store: s, JARM: &stubJARM{}})

		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind:       ResponseKindDirectPost,
			DirectPost: &DirectPostForm{},
		})
		require.Error(t, err)
		require.Equal(t, domain.KindMissingState, domain.KindOf(err))
	})

	t.Run("unknown state is not found", func(t *testing.T) {
		s := store.New()
		v := New(Config{Store: s, JARM: &stubJARM{}})

		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind:       ResponseKindDirectPost,
			DirectPost: &DirectPostForm{State: "nonexistent"},
		})
		require.Error(t, err)
	})

	t.Run("wrong response mode is rejected", func(t *testing.T) {
		s := store.New()
		newIDTokenPresentation(t, s, domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll})

		v := New(Config{Store: s, JARM: &stubJARM{}})

		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind:         ResponseKindDirectPostJWT,
			JARMState:    "req1",
			JARMEnvelope: "whatever",
		})
		require.Error(t, err)
		require.Equal(t, domain.KindUnexpectedResponseMode, domain.KindOf(err))
	})

	t.Run("missing id_token is rejected", func(t *testing.T) {
		s := store.New()
		newIDTokenPresentation(t, s, domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll})

		v := New(Config{Store: s, JARM: &stubJARM{}})

		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind:       ResponseKindDirectPost,
			DirectPost: &DirectPostForm{State: "req1"},
		})
		require.Error(t, err)
		require.Equal(t, domain.KindMissingIDToken, domain.KindOf(err))
	})

	t.Run("error response short circuits to a wallet error response", func(t *testing.T) {
		s := store.New()
		newIDTokenPresentation(t, s, domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll})

		v := New(Config{Store: s, JARM: &stubJARM{}})

		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind: ResponseKindDirectPost,
			DirectPost: &DirectPostForm{
				State: "req1", Error: "access_denied", ErrorDescription: "user cancelled",
			},
		})
		require.NoError(t, err)

		p := s.LoadByTransactionID("tx1")
		require.Equal(t, domain.StatusSubmitted, p.Status)
		require.Equal(t, domain.WalletResponseError, p.WalletResponse.Kind)
		require.Equal(t, "access_denied", p.WalletResponse.ErrorCode)
	})

	t.Run("submitting twice fails the second time", func(t *testing.T) {
		s := store.New()
		newIDTokenPresentation(t, s, domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll})

		v := New(Config{Store: s, JARM: &stubJARM{}})

		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind:       ResponseKindDirectPost,
			DirectPost: &DirectPostForm{State: "req1", IDToken: "some.id.token"},
		})
		require.NoError(t, err)

		_, err = v.Submit(context.Background(), &AuthorisationResponse{
			Kind:       ResponseKindDirectPost,
			DirectPost: &DirectPostForm{State: "req1", IDToken: "some.id.token"},
		})
		require.Error(t, err)
		require.Equal(t, domain.KindPresentationNotInExpectedState, domain.KindOf(err))
	})
}

func TestValidatorSubmitDirectPostJWT(t *testing.T) {
	s := store.New()

	p, err := domain.NewRequested("tx1", "req1", time.Now(), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
		domain.ResponseModeDirectPostJWT, domain.EmbedByValue,
		domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", mustECKey(t), nil)
	require.NoError(t, err)
	require.NoError(t, p.RetrieveRequestObject(time.Now()))

	s.Put(p)

	v := New(Config{
		Store: s,
		JARM: &stubJARM{to: &jarm.AuthorisationResponseTO{
			State: "req1", IDToken: "some.id.token",
		}},
	})

	accepted, err := v.Submit(context.Background(), &AuthorisationResponse{
		Kind:         ResponseKindDirectPostJWT,
		JARMState:    "req1",
		JARMEnvelope: "irrelevant-because-jarm-is-stubbed",
	})
	require.NoError(t, err)
	require.Nil(t, accepted)

	t.Run("mismatched inner/outer state is rejected", func(t *testing.T) {
		s2 := store.New()

		p2, err := domain.NewRequested("tx2", "req2", time.Now(), domain.PresentationType{Kind: domain.PresentationTypeIDToken},
			domain.ResponseModeDirectPostJWT, domain.EmbedByValue,
			domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", mustECKey(t), nil)
		require.NoError(t, err)
		require.NoError(t, p2.RetrieveRequestObject(time.Now()))
		s2.Put(p2)

		v2 := New(Config{
			Store: s2,
			JARM:  &stubJARM{to: &jarm.AuthorisationResponseTO{State: "not-req2", IDToken: "x"}},
		})

		_, err = v2.Submit(context.Background(), &AuthorisationResponse{
			Kind: ResponseKindDirectPostJWT, JARMState: "req2", JARMEnvelope: "whatever",
		})
		require.Error(t, err)
		require.Equal(t, domain.KindIncorrectStateInJarm, domain.KindOf(err))
	})
}

func mustECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return key
}

func signJWS(t *testing.T, key *ecdsa.PrivateKey, payload interface{}) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	jws, err := signer.Sign(raw)
	require.NoError(t, err)

	compact, err := jws.CompactSerialize()
	require.NoError(t, err)

	return compact
}

func TestValidatorSubmitVPToken(t *testing.T) {
	issuerKey := mustECKey(t)
	holderKey := mustECKey(t)

	disclosure := base64.RawURLEncoding.EncodeToString([]byte(`["salt","given_name","Alice"]`))
	sum := sha256.Sum256([]byte(disclosure))
	digest := base64.RawURLEncoding.EncodeToString(sum[:])

	x := base64.RawURLEncoding.EncodeToString(holderKey.X.Bytes())
	y := base64.RawURLEncoding.EncodeToString(holderKey.Y.Bytes())

	issuerJWT := signJWS(t, issuerKey, map[string]interface{}{
		"iss": "https://issuer.example.com",
		"_sd": []string{digest},
		"cnf": map[string]interface{}{
			"jwk": map[string]interface{}{"kty": "EC", "crv": "P-256", "x": x, "y": y},
		},
	})

	kbJWT := signJWS(t, holderKey, map[string]interface{}{
		"nonce": "nonce-1",
		"aud":   "https://verifier.example.com",
	})

	vpToken := issuerJWT + "~" + disclosure + "~" + kbJWT

	submission := domain.PresentationSubmission{
		ID: "sub-1", DefinitionID: "pd-1",
		DescriptorMap: []domain.InputDescriptorMapping{
			{ID: "descriptor-1", Format: domain.FormatSDJwt, Path: "$"},
		},
	}

	submissionJSON, err := json.Marshal(submission)
	require.NoError(t, err)

	s := store.New()

	p, err := domain.NewRequested("tx1", "req1", time.Now(), domain.PresentationType{
		Kind: domain.PresentationTypeVPToken,
		PresentationDefinition: &domain.PresentationDefinition{ID: "pd-1"},
	}, domain.ResponseModeDirectPost, domain.EmbedByValue,
		domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}, "nonce-1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.RetrieveRequestObject(time.Now()))

	s.Put(p)

	v := New(Config{
		Store:         s,
		JARM:          &stubJARM{},
		SDJwtVerifier: sdjwt.New(&issuerKey.PublicKey),
		MdocVerifier:  mdoc.New(&issuerKey.PublicKey, ""),
		ZKPVerifier:   &stubZKP{},
		ClientID:      "https://verifier.example.com",
	})

	t.Run("valid sd-jwt descriptor verifies", func(t *testing.T) {
		_, err := v.Submit(context.Background(), &AuthorisationResponse{
			Kind: ResponseKindDirectPost,
			DirectPost: &DirectPostForm{
				State: "req1", VPToken: string(mustQuote(t, vpToken)), PresentationSubmission: string(submissionJSON),
			},
		})
		require.NoError(t, err)

		loaded := s.LoadByTransactionID("tx1")
		require.Equal(t, domain.StatusSubmitted, loaded.Status)
		require.Equal(t, domain.WalletResponseVPToken, loaded.WalletResponse.Kind)
	})
}

func mustQuote(t *testing.T, s string) []byte {
	t.Helper()

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	return raw
}
