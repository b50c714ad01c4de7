/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package validator

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/jarm"
	"github.com/trustbloc/oidc4vp-verifier/pkg/store"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/mdoc"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/sdjwt"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/zkp"
)

var logger = log.New("oidc4vp-verifier/validator")

// Store is the subset of pkg/store.Store the validator needs.
type Store interface {
	LoadByRequestID(domain.RequestID) *domain.Presentation
	CompareAndSwap(domain.TransactionID, func(*domain.Presentation) (*domain.Presentation, error)) error
}

// JARMUnwrapper decrypts/verifies a JARM envelope (pkg/jarm.Verifier).
type JARMUnwrapper interface {
	Unwrap(jarmJWT string, opt domain.JARMOption, key *ecdsa.PrivateKey) (*jarm.AuthorisationResponseTO, error)
}

// Config wires the Validator's collaborators.
type Config struct {
	Store          Store
	JARM           JARMUnwrapper
	SDJwtVerifier  *sdjwt.Verifier
	MdocVerifier   *mdoc.Verifier
	ZKPVerifier    zkp.Verifier
	ClientID       string
	DefaultJARM    domain.JARMOption
	Now            func() time.Time
}

// Validator implements spec §4.4.
type Validator struct {
	cfg Config
}

// New returns a Validator.
func New(cfg Config) *Validator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Validator{cfg: cfg}
}

// Submit implements the ten-step algorithm of spec §4.4, short-circuiting
// on the first failure: no partial Submitted state is ever written (P4).
func (v *Validator) Submit(ctx context.Context, resp *AuthorisationResponse) (*Accepted, error) {
	// 1. Extract state.
	state := resp.state()
	if state == "" {
		return nil, domain.NewError(domain.KindMissingState, "state is required")
	}

	// 2. Load and gate.
	p := v.cfg.Store.LoadByRequestID(domain.RequestID(state))
	if p == nil {
		return nil, domain.NewError(domain.KindPresentationDefinitionNotFound, "no presentation for this state")
	}

	if p.Status == domain.StatusTimedOut {
		return nil, domain.NewError(domain.KindExpired, "presentation has expired")
	}

	if p.Status != domain.StatusRequestObjectRetrieved {
		return nil, domain.NewError(domain.KindPresentationNotInExpectedState,
			fmt.Sprintf("expected request_object_retrieved, got %s", p.Status))
	}

	// 3. Response-mode match.
	if resp.responseMode() != p.ResponseMode {
		return nil, domain.NewUnexpectedResponseModeError(p.ResponseMode, resp.responseMode())
	}

	// 4. Unwrap JARM (DirectPostJwt only).
	to, err := v.toResponseTO(resp, p)
	if err != nil {
		return nil, err
	}

	// 5-7. Classify and assemble.
	wr, err := v.classifyAndVerify(ctx, p, to)
	if err != nil {
		return nil, err
	}

	// 8. Allocate ResponseCode iff Redirect.
	var code domain.ResponseCode
	if p.GetWalletResponseMethod.IsRedirect() {
		code = domain.ResponseCode(uuid.NewString())
	}

	now := v.cfg.Now()

	// 9. Transition and persist, serialized per record (spec §5).
	err = v.cfg.Store.CompareAndSwap(p.ID, func(current *domain.Presentation) (*domain.Presentation, error) {
		if current == nil {
			return nil, domain.NewError(domain.KindPresentationDefinitionNotFound, "no presentation for this state")
		}

		if current.Status != domain.StatusRequestObjectRetrieved {
			return nil, domain.NewError(domain.KindPresentationNotInExpectedState,
				"presentation was concurrently transitioned")
		}

		if err := current.Submit(now, wr, code); err != nil {
			return nil, fmt.Errorf("failed to submit wallet response: %w", err)
		}

		return current, nil
	})
	if err != nil {
		if err == store.ErrConcurrentUpdate {
			return nil, domain.NewError(domain.KindPresentationNotInExpectedState,
				"another submission won the race for this presentation")
		}

		return nil, err
	}

	// 10. Return Accepted for Redirect, otherwise empty.
	if !p.GetWalletResponseMethod.IsRedirect() {
		return nil, nil
	}

	return &Accepted{RedirectURI: p.GetWalletResponseMethod.Expand(code)}, nil
}

func (v *Validator) toResponseTO(resp *AuthorisationResponse, p *domain.Presentation) (*jarm.AuthorisationResponseTO, error) {
	if resp.Kind == ResponseKindDirectPost {
		f := resp.DirectPost

		var ps *domain.PresentationSubmission

		if f.PresentationSubmission != "" {
			ps = &domain.PresentationSubmission{}
			if err := json.Unmarshal([]byte(f.PresentationSubmission), ps); err != nil {
				return nil, domain.NewError(domain.KindMissingVPTokenOrPresentationSubmission,
					"presentation_submission is not valid json")
			}
		}

		return &jarm.AuthorisationResponseTO{
			State:                  f.State,
			IDToken:                f.IDToken,
			VPToken:                f.VPToken,
			PresentationSubmission: ps,
			Error:                  f.Error,
			ErrorDescription:       f.ErrorDescription,
		}, nil
	}

	opt := v.jarmOption(p)

	to, err := v.cfg.JARM.Unwrap(resp.JARMEnvelope, opt, p.EphemeralECPrivateKey)
	if err != nil {
		return nil, err
	}

	if to.State != resp.JARMState {
		return nil, domain.NewError(domain.KindIncorrectStateInJarm,
			"inner jarm state does not match outer form state")
	}

	return to, nil
}

func (v *Validator) jarmOption(p *domain.Presentation) domain.JARMOption {
	if p.ResponseMode != domain.ResponseModeDirectPostJWT {
		return domain.JARMOption{Kind: domain.JARMUnsigned}
	}

	return v.cfg.DefaultJARM
}

func (v *Validator) classifyAndVerify(
	ctx context.Context, p *domain.Presentation, to *jarm.AuthorisationResponseTO,
) (*domain.WalletResponse, error) {
	if to.Error != "" {
		return &domain.WalletResponse{
			Kind:             domain.WalletResponseError,
			ErrorCode:        to.Error,
			ErrorDescription: to.ErrorDescription,
		}, nil
	}

	needsIDToken := p.Type.RequiresIDToken()
	needsVPToken := p.Type.RequiresVPToken()

	if needsIDToken && to.IDToken == "" {
		return nil, domain.NewError(domain.KindMissingIDToken, "id_token is required by this presentation type")
	}

	if needsVPToken && (to.VPToken == "" || to.PresentationSubmission == nil) {
		return nil, domain.NewError(domain.KindMissingVPTokenOrPresentationSubmission,
			"vp_token and presentation_submission are both required by this presentation type")
	}

	if needsVPToken {
		if err := v.verifyVPToken(ctx, p, to); err != nil {
			return nil, err
		}
	}

	return assembleWalletResponse(p.Type, to), nil
}

func assembleWalletResponse(typ domain.PresentationType, to *jarm.AuthorisationResponseTO) *domain.WalletResponse {
	switch typ.Kind {
	case domain.PresentationTypeIDToken:
		return &domain.WalletResponse{Kind: domain.WalletResponseIDToken, IDToken: to.IDToken}
	case domain.PresentationTypeVPToken:
		return &domain.WalletResponse{
			Kind: domain.WalletResponseVPToken, VPToken: to.VPToken, PresentationSubmission: to.PresentationSubmission,
		}
	default:
		return &domain.WalletResponse{
			Kind: domain.WalletResponseIDAndVPToken, IDToken: to.IDToken,
			VPToken: to.VPToken, PresentationSubmission: to.PresentationSubmission,
		}
	}
}

// verifyVPToken implements spec §4.4 step 6: iterate descriptorMaps, extract
// each sub-token by JSONPath, and dispatch cryptographic verification by
// format.
func (v *Validator) verifyVPToken(ctx context.Context, p *domain.Presentation, to *jarm.AuthorisationResponseTO) error {
	var vpToken interface{}
	if err := json.Unmarshal([]byte(to.VPToken), &vpToken); err != nil {
		// not every wallet wraps a lone credential in JSON quotes; treat the
		// raw string as the token value itself.
		vpToken = to.VPToken
	}

	builder := gval.Full(jsonpath.PlaceholderExtension())

	for _, mapping := range to.PresentationSubmission.DescriptorMap {
		token, err := extractByPath(builder, vpToken, mapping.Path)
		if err != nil {
			return domain.NewError(domain.KindMissingVPTokenOrPresentationSubmission,
				fmt.Sprintf("failed to extract token for descriptor %s", mapping.ID))
		}

		if err := v.verifyDescriptor(ctx, p, mapping, token); err != nil {
			return err
		}
	}

	return nil
}

func extractByPath(builder gval.Language, vpToken interface{}, path string) (string, error) {
	if path == "" || path == "$" {
		if s, ok := vpToken.(string); ok {
			return s, nil
		}

		return "", fmt.Errorf("root vp_token value is not a string")
	}

	evaluable, err := builder.NewEvaluable(path)
	if err != nil {
		return "", fmt.Errorf("failed to build json path evaluator: %w", err)
	}

	result, err := evaluable(context.Background(), vpToken)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate json path %s: %w", path, err)
	}

	s, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("json path %s did not resolve to a string token", path)
	}

	return s, nil
}

func (v *Validator) verifyDescriptor(
	ctx context.Context, p *domain.Presentation, mapping domain.InputDescriptorMapping, token string,
) error {
	switch mapping.Format {
	case domain.FormatSDJwt:
		err := v.cfg.SDJwtVerifier.Verify(token, sdjwt.VerifyOptions{ExpectedNonce: p.Nonce, ExpectedAudience: v.cfg.ClientID})
		if err != nil {
			logger.Infof("sd-jwt verification failed for descriptor %s: %s", mapping.ID, err)
			return domain.NewError(domain.KindInvalidSDJwt, "sd-jwt verification failed")
		}

		return nil

	case domain.FormatMsoMdoc:
		if err := v.cfg.MdocVerifier.Verify(token); err != nil {
			logger.Infof("mdoc verification failed for descriptor %s: %s", mapping.ID, err)
			return domain.NewError(domain.KindInvalidMdoc, "mdoc verification failed")
		}

		return nil

	case domain.FormatSDJwtZKP:
		return v.verifySDJwtZKP(p, mapping, token)

	case domain.FormatMsoMdocZKP:
		return v.verifyMdocZKP(ctx, p, mapping, token)

	default:
		return domain.NewError(domain.KindInvalidFormat, fmt.Sprintf("unsupported descriptor format %q", mapping.Format))
	}
}

func (v *Validator) zkpKey(p *domain.Presentation, descriptorID string) (*ecdsa.PublicKey, error) {
	if p.ZKPKeys == nil {
		return nil, domain.NewError(domain.KindInvalidVPToken, "no zkp keys registered for this presentation")
	}

	key, ok := p.ZKPKeys[descriptorID]
	if !ok {
		return nil, domain.NewError(domain.KindInvalidVPToken, "no zkp key registered for this descriptor")
	}

	return key, nil
}

func (v *Validator) verifySDJwtZKP(p *domain.Presentation, mapping domain.InputDescriptorMapping, token string) error {
	key, err := v.zkpKey(p, mapping.ID)
	if err != nil {
		return err
	}

	issuerJWT, _, _ := sdjwt.Split(token)

	ok, err := v.cfg.ZKPVerifier.Verify(key, zkp.FormatSDJWT, issuerJWT, p.Nonce)
	if err != nil || !ok {
		return domain.NewError(domain.KindInvalidVPToken, "sd-jwt zkp challenge verification failed")
	}

	return nil
}

func (v *Validator) verifyMdocZKP(ctx context.Context, p *domain.Presentation, mapping domain.InputDescriptorMapping, token string) error {
	key, err := v.zkpKey(p, mapping.ID)
	if err != nil {
		return err
	}

	docs, err := mdoc.Documents(token)
	if err != nil {
		return domain.NewError(domain.KindInvalidVPToken, "failed to parse mdoc zkp container")
	}

	for _, doc := range docs {
		encoded := mdoc.ReEncodeDocument(doc)

		ok, err := v.cfg.ZKPVerifier.Verify(key, zkp.FormatMsoMdoc, encoded, p.Nonce)
		if err != nil || !ok {
			return domain.NewError(domain.KindInvalidVPToken, "mdoc zkp challenge verification failed")
		}
	}

	return nil
}
