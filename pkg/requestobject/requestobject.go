/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package requestobject builds and signs the Wallet-bound Request Object
// (JAR) and drives InitTransaction (spec §4.2).
package requestobject

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/internal/common/adapterutil"
)

var validClientIDSchemes = []string{
	string(domain.ClientIDSchemePreRegistered),
	string(domain.ClientIDSchemeRedirectURI),
	string(domain.ClientIDSchemeX509SANDNS),
	string(domain.ClientIDSchemeDID),
}

// Config is the Verifier-wide configuration read by the builder, sourced
// from the keys in spec §6's Configuration table.
type Config struct {
	ClientID       string
	ClientIDScheme domain.ClientIDScheme
	PublicURL      string // base for request_uri / response_uri, verifier.publicUrl

	SigningKey crypto.Signer             // verifier.jar.signing.key
	SigningAlg jose.SignatureAlgorithm   // verifier.jar.signing.algorithm, e.g. RS256

	DefaultResponseMode             domain.ResponseMode // verifier.response.mode
	JARMOption                      domain.JARMOption   // client_metadata authorizationSigned/EncryptedResponseAlg(Enc)
	RequestJWTEmbed                 domain.EmbedMode     // verifier.requestJwt.embed
	PresentationDefinitionEmbed     domain.EmbedMode     // verifier.presentationDefinition.embed
}

// InitTransactionRequest is the Verifier front-end's request body to
// POST /ui/presentations.
type InitTransactionRequest struct {
	Type                       domain.PresentationTypeKind
	IDTokenType                domain.IDTokenType
	PresentationDefinition     *domain.PresentationDefinition
	ResponseMode               domain.ResponseMode // zero value means "use Config.DefaultResponseMode"
	GetWalletResponseMethod    domain.GetWalletResponseMethod
	Nonce                      string // zero value means "generate one"
	ZKPKeys                    map[string]*ecdsa.PublicKey
}

// BuildResult is the response body of POST /ui/presentations.
type BuildResult struct {
	TransactionID          domain.TransactionID
	RequestURI             string
	PresentationDefinition *domain.PresentationDefinition
}

// Builder signs and serializes Request Objects and drives InitTransaction.
type Builder struct {
	cfg Config
}

// New returns a Builder bound to cfg. Configuration inconsistencies (JARM
// option not compatible with DirectPostJwt) are caught at call time, not
// here, since they may depend on the per-transaction response mode.
func New(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// InitTransaction implements spec §4.2. It generates fresh identifiers and
// nonce, mints the ephemeral EC key when required, and returns both the
// Presentation to be stored (by the caller, typically pkg/usecase) and the
// API response body.
func (b *Builder) InitTransaction(req InitTransactionRequest, now time.Time) (*domain.Presentation, *BuildResult, error) {
	responseMode := req.ResponseMode
	if responseMode == "" {
		responseMode = b.cfg.DefaultResponseMode
	}

	if err := b.validateConfiguration(responseMode); err != nil {
		return nil, nil, err
	}

	typ := domain.PresentationType{Kind: req.Type, IDTokenType: req.IDTokenType, PresentationDefinition: req.PresentationDefinition}

	var ephemeralKey *ecdsa.PrivateKey

	if responseMode == domain.ResponseModeDirectPostJWT {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ephemeral EC key: %w", err)
		}

		ephemeralKey = key
	}

	nonce := req.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}

	txID := domain.TransactionID(uuid.NewString())
	reqID := domain.RequestID(uuid.NewString())

	p, err := domain.NewRequested(
		txID, reqID, now, typ, responseMode, b.cfg.PresentationDefinitionEmbed,
		req.GetWalletResponseMethod, nonce, ephemeralKey, req.ZKPKeys,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initiate presentation: %w", err)
	}

	result := &BuildResult{
		TransactionID: txID,
		RequestURI:    fmt.Sprintf("%s/wallet/request.jwt/%s", b.cfg.PublicURL, reqID),
	}

	if b.cfg.PresentationDefinitionEmbed == domain.EmbedByValue {
		result.PresentationDefinition = req.PresentationDefinition
	}

	return p, result, nil
}

func (b *Builder) validateConfiguration(mode domain.ResponseMode) error {
	if !adapterutil.StringsContains(string(b.cfg.ClientIDScheme), validClientIDSchemes) {
		return domain.NewError(domain.KindInvalidConfiguration,
			fmt.Sprintf("unsupported client_id_scheme %q", b.cfg.ClientIDScheme))
	}

	if mode != domain.ResponseModeDirectPostJWT {
		return nil
	}

	switch b.cfg.JARMOption.Kind {
	case domain.JARMSigned, domain.JARMEncrypted, domain.JARMSignedAndEncrypted:
		return nil
	default:
		return domain.NewError(domain.KindInvalidConfiguration,
			"direct_post.jwt requires a signed and/or encrypted JARM option")
	}
}

// Build signs the JAR for an already-stored Presentation (spec §4.3,
// GetRequestObject). The JAR is rebuilt deterministically from the
// Presentation's stored fields rather than cached, so round-tripping
// (sign, then parse back) always yields the same claim set (P testable
// property).
func (b *Builder) Build(p *domain.Presentation) ([]byte, error) {
	claims := map[string]interface{}{
		"client_id":        b.cfg.ClientID,
		"client_id_scheme": string(b.cfg.ClientIDScheme),
		"response_type":    responseType(p.Type),
		"response_mode":    string(p.ResponseMode),
		"nonce":            p.Nonce,
		"state":            string(p.RequestID),
		"client_metadata":  b.clientMetadata(p),
	}

	if p.Type.RequiresVPToken() {
		if p.PresentationDefinitionMode == domain.EmbedByValue {
			claims["presentation_definition"] = p.Type.PresentationDefinition
		} else {
			claims["presentation_definition_uri"] = fmt.Sprintf(
				"%s/wallet/presentation-definition/%s", b.cfg.PublicURL, p.RequestID)
		}
	}

	responseURI := fmt.Sprintf("%s/wallet/direct_post", b.cfg.PublicURL)
	if p.ResponseMode == domain.ResponseModeDirectPostJWT {
		responseURI = fmt.Sprintf("%s/wallet/direct_post.jwt", b.cfg.PublicURL)
	}

	claims["response_uri"] = responseURI

	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request object claims: %w", err)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: b.cfg.SigningAlg, Key: b.cfg.SigningKey}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JAR signer: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request object: %w", err)
	}

	serialized, err := jws.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request object: %w", err)
	}

	return []byte(serialized), nil
}

func (b *Builder) clientMetadata(p *domain.Presentation) map[string]interface{} {
	metadata := map[string]interface{}{}

	if b.cfg.JARMOption.Kind == domain.JARMSigned || b.cfg.JARMOption.Kind == domain.JARMSignedAndEncrypted {
		metadata["authorization_signed_response_alg"] = b.cfg.JARMOption.SigningAlg
	}

	if b.cfg.JARMOption.Kind == domain.JARMEncrypted || b.cfg.JARMOption.Kind == domain.JARMSignedAndEncrypted {
		metadata["authorization_encrypted_response_alg"] = b.cfg.JARMOption.EncryptionAlg
		metadata["authorization_encrypted_response_enc"] = b.cfg.JARMOption.EncryptionEnc
	}

	if p.EphemeralECPrivateKey != nil {
		pub := p.EphemeralECPrivateKey.PublicKey
		metadata["jwks"] = map[string]interface{}{
			"keys": []map[string]interface{}{
				{
					"kty": "EC",
					"crv": "P-256",
					"use": "enc",
					"x":   encodeCoord(pub.X),
					"y":   encodeCoord(pub.Y),
				},
			},
		}
	}

	return metadata
}

func responseType(t domain.PresentationType) string {
	switch t.Kind {
	case domain.PresentationTypeIDToken:
		return "id_token"
	case domain.PresentationTypeVPToken:
		return "vp_token"
	default:
		return "vp_token id_token"
	}
}
