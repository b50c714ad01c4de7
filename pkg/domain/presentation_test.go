/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return key
}

func TestNewRequested(t *testing.T) {
	t.Run("direct_post requires no ephemeral key", func(t *testing.T) {
		p, err := NewRequested("tx1", "req1", time.Now(), PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
			"nonce", nil, nil)
		require.NoError(t, err)
		require.Equal(t, StatusRequested, p.Status)
	})

	t.Run("direct_post.jwt without ephemeral key is I3 violation", func(t *testing.T) {
		_, err := NewRequested("tx1", "req1", time.Now(), PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPostJWT, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
			"nonce", nil, nil)
		require.Error(t, err)
	})

	t.Run("direct_post.jwt with ephemeral key succeeds", func(t *testing.T) {
		p, err := NewRequested("tx1", "req1", time.Now(), PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPostJWT, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
			"nonce", mustECKey(t), nil)
		require.NoError(t, err)
		require.NotNil(t, p.EphemeralECPrivateKey)
	})

	t.Run("direct_post with ephemeral key is also an I3 violation", func(t *testing.T) {
		_, err := NewRequested("tx1", "req1", time.Now(), PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
			"nonce", mustECKey(t), nil)
		require.Error(t, err)
	})

	t.Run("redirect method requires a uri template", func(t *testing.T) {
		_, err := NewRequested("tx1", "req1", time.Now(), PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodRedirect},
			"nonce", nil, nil)
		require.Error(t, err)
	})
}

func TestPresentationLifecycle(t *testing.T) {
	now := time.Now()

	p, err := NewRequested("tx1", "req1", now, PresentationType{Kind: PresentationTypeIDToken},
		ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
		"nonce", nil, nil)
	require.NoError(t, err)

	t.Run("retrieve request object transitions once", func(t *testing.T) {
		require.NoError(t, p.RetrieveRequestObject(now.Add(time.Second)))
		require.Equal(t, StatusRequestObjectRetrieved, p.Status)
		require.Error(t, p.RetrieveRequestObject(now.Add(2*time.Second)))
	})

	t.Run("submit requires matching response code presence", func(t *testing.T) {
		err := p.Submit(now.Add(3*time.Second), &WalletResponse{Kind: WalletResponseIDToken}, "unexpected-code")
		require.Error(t, err)

		require.NoError(t, p.Submit(now.Add(3*time.Second), &WalletResponse{Kind: WalletResponseIDToken}, ""))
		require.Equal(t, StatusSubmitted, p.Status)
	})

	t.Run("submit from a terminal status fails", func(t *testing.T) {
		require.Error(t, p.Submit(now.Add(4*time.Second), &WalletResponse{}, ""))
	})
}

func TestPresentationTimeOut(t *testing.T) {
	now := time.Now()

	t.Run("times out a requested presentation", func(t *testing.T) {
		p, err := NewRequested("tx1", "req1", now, PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
			"nonce", nil, nil)
		require.NoError(t, err)

		p.TimeOut(now.Add(time.Hour), TimeoutReasonExpired)
		require.Equal(t, StatusTimedOut, p.Status)
	})

	t.Run("is a no-op once submitted", func(t *testing.T) {
		p, err := NewRequested("tx1", "req1", now, PresentationType{Kind: PresentationTypeIDToken},
			ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
			"nonce", nil, nil)
		require.NoError(t, err)
		require.NoError(t, p.RetrieveRequestObject(now))
		require.NoError(t, p.Submit(now, &WalletResponse{}, ""))

		p.TimeOut(now.Add(time.Hour), TimeoutReasonExpired)
		require.Equal(t, StatusSubmitted, p.Status)
	})
}

func TestPresentationIsExpired(t *testing.T) {
	now := time.Now()

	p, err := NewRequested("tx1", "req1", now, PresentationType{Kind: PresentationTypeIDToken},
		ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
		"nonce", nil, nil)
	require.NoError(t, err)

	require.False(t, p.IsExpired(now.Add(time.Second), time.Minute))
	require.True(t, p.IsExpired(now.Add(time.Hour), time.Minute))

	require.NoError(t, p.RetrieveRequestObject(now))
	require.NoError(t, p.Submit(now, &WalletResponse{}, ""))
	require.False(t, p.IsExpired(now.Add(time.Hour), time.Minute), "submitted presentations are never swept")
}

func TestPresentationClone(t *testing.T) {
	now := time.Now()

	p, err := NewRequested("tx1", "req1", now, PresentationType{Kind: PresentationTypeIDToken},
		ResponseModeDirectPost, EmbedByValue, GetWalletResponseMethod{Kind: GetWalletResponseMethodPoll},
		"nonce", nil, nil)
	require.NoError(t, err)

	cp := p.Clone()
	cp.Status = StatusTimedOut

	require.Equal(t, StatusRequested, p.Status, "mutating the clone must not affect the original")
}
