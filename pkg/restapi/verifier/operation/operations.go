/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package operation implements the five HTTP endpoints of spec §6, plus
// GET /wallet/presentation-definition/{requestId}, on top of pkg/usecase.
package operation

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/internal/common/adapterutil"
	"github.com/trustbloc/oidc4vp-verifier/pkg/internal/common/support"
	"github.com/trustbloc/oidc4vp-verifier/pkg/requestobject"
	commhttp "github.com/trustbloc/oidc4vp-verifier/pkg/restapi/internal/common/http"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi"
	"github.com/trustbloc/oidc4vp-verifier/pkg/usecase"
	"github.com/trustbloc/oidc4vp-verifier/pkg/validator"
)

// API endpoints, per spec §6.
const (
	initTransactionEndpoint            = "/ui/presentations"
	getWalletResponseEndpoint          = "/ui/presentations/{transactionId}"
	getRequestObjectEndpoint           = "/wallet/request.jwt/{requestId}"
	getPresentationDefinitionEndpoint  = "/wallet/presentation-definition/{requestId}"
	directPostEndpoint                 = "/wallet/direct_post"
	directPostJWTEndpoint              = "/wallet/direct_post.jwt"
)

const requestObjectContentType = "application/oauth-authz-req+jwt"

var logger = log.New("oidc4vp-verifier/restapi/verifier")

// Config wires the Operation's UseCase.
type Config struct {
	UseCase *usecase.UseCase
}

// Operation implements the restapi.Handler endpoints of spec §6.
type Operation struct {
	useCase *usecase.UseCase
}

// New returns an Operation bound to config.
func New(config *Config) (*Operation, error) {
	if config.UseCase == nil {
		return nil, fmt.Errorf("usecase is required")
	}

	return &Operation{useCase: config.UseCase}, nil
}

// GetRESTHandlers returns all controller API handlers available for this
// service.
func (o *Operation) GetRESTHandlers() []restapi.Handler {
	return []restapi.Handler{
		support.NewHTTPHandler(initTransactionEndpoint, http.MethodPost, o.initTransactionHandler),
		support.NewHTTPHandler(getWalletResponseEndpoint, http.MethodGet, o.getWalletResponseHandler),
		support.NewHTTPHandler(getRequestObjectEndpoint, http.MethodGet, o.getRequestObjectHandler),
		support.NewHTTPHandler(getPresentationDefinitionEndpoint, http.MethodGet, o.getPresentationDefinitionHandler),
		support.NewHTTPHandler(directPostEndpoint, http.MethodPost, o.directPostHandler),
		support.NewHTTPHandler(directPostJWTEndpoint, http.MethodPost, o.directPostJWTHandler),
	}
}

// initTransactionHandler implements POST /ui/presentations (spec §4.2, §6).
func (o *Operation) initTransactionHandler(w http.ResponseWriter, r *http.Request) {
	reqTO := InitTransactionRequestTO{}

	if err := json.NewDecoder(r.Body).Decode(&reqTO); err != nil {
		commhttp.WriteErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))

		return
	}

	req, err := toInitTransactionRequest(reqTO)
	if err != nil {
		commhttp.WriteErrorResponse(w, http.StatusBadRequest, err.Error())

		return
	}

	result, err := o.useCase.InitTransaction(req)
	if err != nil {
		writeCoreError(w, err, statusForInitTransaction)

		return
	}

	commhttp.WriteResponse(w, InitTransactionResponseTO{
		TransactionID:          string(result.TransactionID),
		RequestURI:             result.RequestURI,
		PresentationDefinition: result.PresentationDefinition,
	})
}

func toInitTransactionRequest(to InitTransactionRequestTO) (requestobject.InitTransactionRequest, error) {
	method := domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodPoll}

	switch to.GetWalletResponseMethod {
	case "", "poll":
	case "redirect":
		if to.RedirectURITemplate == "" {
			return requestobject.InitTransactionRequest{}, fmt.Errorf("redirect_uri_template is required for the redirect method")
		}

		if !adapterutil.ValidHTTPURL(strings.SplitN(to.RedirectURITemplate, "?", 2)[0]) {
			return requestobject.InitTransactionRequest{}, fmt.Errorf("redirect_uri_template is not a valid http(s) URL")
		}

		method = domain.GetWalletResponseMethod{Kind: domain.GetWalletResponseMethodRedirect, URITemplate: to.RedirectURITemplate}
	default:
		return requestobject.InitTransactionRequest{}, fmt.Errorf("unsupported get_wallet_response_method %q", to.GetWalletResponseMethod)
	}

	zkpKeys, err := toZKPKeys(to.ZKPKeys)
	if err != nil {
		return requestobject.InitTransactionRequest{}, err
	}

	return requestobject.InitTransactionRequest{
		Type:                    domain.PresentationTypeKind(to.Type),
		IDTokenType:             domain.IDTokenType(to.IDTokenType),
		PresentationDefinition:  to.PresentationDefinition,
		ResponseMode:            domain.ResponseMode(to.ResponseMode),
		GetWalletResponseMethod: method,
		Nonce:                   to.Nonce,
		ZKPKeys:                 zkpKeys,
	}, nil
}

func toZKPKeys(jwks map[string]jose.JSONWebKey) (map[string]*ecdsa.PublicKey, error) {
	if len(jwks) == 0 {
		return nil, nil
	}

	keys := make(map[string]*ecdsa.PublicKey, len(jwks))

	for descriptorID, jwk := range jwks {
		pub, ok := jwk.Key.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("zkp_keys[%s] is not an EC public key", descriptorID)
		}

		keys[descriptorID] = pub
	}

	return keys, nil
}

// getRequestObjectHandler implements GET /wallet/request.jwt/{requestId}
// (spec §4.3, §6).
func (o *Operation) getRequestObjectHandler(w http.ResponseWriter, r *http.Request) {
	requestID := domain.RequestID(mux.Vars(r)["requestId"])

	jar, err := o.useCase.GetRequestObject(requestID)
	if err != nil {
		writeCoreError(w, err, statusForGetRequestObject)

		return
	}

	w.Header().Set("Content-Type", requestObjectContentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(jar); err != nil {
		logger.Errorf("failed to write request object response: %s", err)
	}
}

// getPresentationDefinitionHandler implements
// GET /wallet/presentation-definition/{requestId}, the target of the
// presentation_definition_uri a Request Object embeds by reference
// (spec §4.3, §6).
func (o *Operation) getPresentationDefinitionHandler(w http.ResponseWriter, r *http.Request) {
	requestID := domain.RequestID(mux.Vars(r)["requestId"])

	pd, err := o.useCase.GetPresentationDefinition(requestID)
	if err != nil {
		writeCoreError(w, err, statusForGetPresentationDefinition)

		return
	}

	commhttp.WriteResponse(w, pd)
}

// directPostHandler implements POST /wallet/direct_post (spec §4.4, §6).
func (o *Operation) directPostHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		commhttp.WriteErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid form body: %s", err))

		return
	}

	resp := &validator.AuthorisationResponse{
		Kind: validator.ResponseKindDirectPost,
		DirectPost: &validator.DirectPostForm{
			State:                  r.FormValue("state"),
			IDToken:                r.FormValue("id_token"),
			VPToken:                r.FormValue("vp_token"),
			PresentationSubmission: r.FormValue("presentation_submission"),
			Error:                  r.FormValue("error"),
			ErrorDescription:       r.FormValue("error_description"),
		},
	}

	o.submit(w, r, resp)
}

// directPostJWTHandler implements POST /wallet/direct_post.jwt (spec §4.4, §6).
func (o *Operation) directPostJWTHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		commhttp.WriteErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid form body: %s", err))

		return
	}

	resp := &validator.AuthorisationResponse{
		Kind:         validator.ResponseKindDirectPostJWT,
		JARMState:    r.FormValue("state"),
		JARMEnvelope: r.FormValue("response"),
	}

	o.submit(w, r, resp)
}

func (o *Operation) submit(w http.ResponseWriter, r *http.Request, resp *validator.AuthorisationResponse) {
	accepted, err := o.useCase.PostWalletResponse(r.Context(), resp)
	if err != nil {
		writeCoreError(w, err, statusForPostWalletResponse)

		return
	}

	if accepted == nil {
		w.WriteHeader(http.StatusOK)

		return
	}

	commhttp.WriteResponse(w, AcceptedTO{RedirectURI: accepted.RedirectURI})
}

// getWalletResponseHandler implements
// GET /ui/presentations/{transactionId}?response_code=… (spec §4.5, §6).
func (o *Operation) getWalletResponseHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := domain.TransactionID(mux.Vars(r)["transactionId"])
	responseCode := domain.ResponseCode(r.URL.Query().Get("response_code"))

	view, err := o.useCase.GetWalletResponse(transactionID, responseCode)
	if err != nil {
		writeCoreError(w, err, statusForGetWalletResponse)

		return
	}

	commhttp.WriteResponse(w, WalletResponseTO{
		IDToken:                view.IDToken,
		VPToken:                view.VPToken,
		PresentationSubmission: view.PresentationSubmission,
		Error:                  view.ErrorCode,
		ErrorDescription:       view.ErrorDescription,
	})
}

func statusForInitTransaction(kind domain.ErrorKind) int {
	if kind == domain.KindInvalidConfiguration {
		return http.StatusInternalServerError
	}

	return http.StatusBadRequest
}

func statusForGetRequestObject(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindExpired:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

func statusForGetPresentationDefinition(kind domain.ErrorKind) int {
	if kind == domain.KindNotFound {
		return http.StatusNotFound
	}

	return http.StatusBadRequest
}

func statusForPostWalletResponse(domain.ErrorKind) int {
	return http.StatusBadRequest
}

func statusForGetWalletResponse(kind domain.ErrorKind) int {
	if kind == domain.KindNotFound {
		return http.StatusNotFound
	}

	return http.StatusBadRequest
}

// writeCoreError unwraps a *domain.CoreError (falling back to 500 for
// anything else, which should never happen past the use case layer) and
// writes the structured error body spec §7 names.
func writeCoreError(w http.ResponseWriter, err error, statusFor func(domain.ErrorKind) int) {
	kind := domain.KindOf(err)
	if kind == "" {
		logger.Errorf("unexpected non-domain error: %s", err)
		commhttp.WriteErrorResponse(w, http.StatusInternalServerError, "internal error")

		return
	}

	commhttp.WriteErrorResponseWithLog(w, statusFor(kind), err.Error(), string(kind))
}
