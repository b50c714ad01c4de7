/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/trustbloc/edge-core/pkg/log"
	cmdutils "github.com/trustbloc/edge-core/pkg/utils/cmd"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
	"github.com/trustbloc/oidc4vp-verifier/pkg/jarm"
	"github.com/trustbloc/oidc4vp-verifier/pkg/requestobject"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi/healthcheck"
	"github.com/trustbloc/oidc4vp-verifier/pkg/restapi/verifier"
	verifierops "github.com/trustbloc/oidc4vp-verifier/pkg/restapi/verifier/operation"
	"github.com/trustbloc/oidc4vp-verifier/pkg/store"
	"github.com/trustbloc/oidc4vp-verifier/pkg/usecase"
	"github.com/trustbloc/oidc4vp-verifier/pkg/validator"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/mdoc"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/sdjwt"
	"github.com/trustbloc/oidc4vp-verifier/pkg/vp/zkp"
)

var logger = log.New("oidc4vp-verifier")

const (
	hostURLFlagName  = "host-url"
	hostURLFlagUsage = "URL to run the verifier-rest instance on. Format: HostName:Port." +
		" Alternatively, this can be set with the following environment variable: " + hostURLEnvKey
	hostURLEnvKey = "VERIFIER_REST_HOST_URL"

	publicURLFlagName  = "public-url"
	publicURLFlagUsage = "Base URL the Wallet uses to reach request_uri and response_uri (verifier.publicUrl)." +
		" Alternatively, this can be set with the following environment variable: " + publicURLEnvKey
	publicURLEnvKey = "VERIFIER_REST_PUBLIC_URL"

	clientIDFlagName  = "client-id"
	clientIDFlagUsage = "The Verifier's client_id (verifier.clientId)." +
		" Alternatively, this can be set with the following environment variable: " + clientIDEnvKey
	clientIDEnvKey = "VERIFIER_REST_CLIENT_ID"

	clientIDSchemeFlagName  = "client-id-scheme"
	clientIDSchemeFlagUsage = "The Verifier's client_id_scheme (verifier.clientIdScheme)." +
		" One of [pre-registered, redirect_uri, x509_san_dns, did]. Default: pre-registered." +
		" Alternatively, this can be set with the following environment variable: " + clientIDSchemeEnvKey
	clientIDSchemeEnvKey = "VERIFIER_REST_CLIENT_ID_SCHEME"

	jarSigningKeyFlagName  = "jar-signing-key"
	jarSigningKeyFlagUsage = "Path to the PEM-encoded private key used to sign Request Objects (verifier.jar.signing.key)." +
		" Alternatively, this can be set with the following environment variable: " + jarSigningKeyEnvKey
	jarSigningKeyEnvKey = "VERIFIER_REST_JAR_SIGNING_KEY"

	jarSigningAlgFlagName  = "jar-signing-alg"
	jarSigningAlgFlagUsage = "JAR signing algorithm (verifier.jar.signing.algorithm), e.g. RS256. Default: RS256." +
		" Alternatively, this can be set with the following environment variable: " + jarSigningAlgEnvKey
	jarSigningAlgEnvKey = "VERIFIER_REST_JAR_SIGNING_ALG"

	issuerCertFlagName  = "issuer-cert"
	issuerCertFlagUsage = "Path to the Issuer's PEM-encoded EC certificate (verifier.issuer.cert)," +
		" used to verify SD-JWT and mDoc presentations." +
		" Alternatively, this can be set with the following environment variable: " + issuerCertEnvKey
	issuerCertEnvKey = "VERIFIER_REST_ISSUER_CERT"

	responseModeFlagName  = "response-mode"
	responseModeFlagUsage = "Default ResponseMode (verifier.response.mode): direct_post or direct_post.jwt." +
		" Default: direct_post." +
		" Alternatively, this can be set with the following environment variable: " + responseModeEnvKey
	responseModeEnvKey = "VERIFIER_REST_RESPONSE_MODE"

	jarmSignedAlgFlagName  = "jarm-signed-alg"
	jarmSignedAlgFlagUsage = "JARM signing algorithm (verifier.clientMetadata.authorizationSignedResponseAlg)." +
		" Empty means JARM is not signed." +
		" Alternatively, this can be set with the following environment variable: " + jarmSignedAlgEnvKey
	jarmSignedAlgEnvKey = "VERIFIER_REST_JARM_SIGNED_ALG"

	jarmEncryptedAlgFlagName  = "jarm-encrypted-alg"
	jarmEncryptedAlgFlagUsage = "JARM encryption key-management algorithm " +
		"(verifier.clientMetadata.authorizationEncryptedResponseAlg), e.g. ECDH-ES." +
		" Empty means JARM is not encrypted." +
		" Alternatively, this can be set with the following environment variable: " + jarmEncryptedAlgEnvKey
	jarmEncryptedAlgEnvKey = "VERIFIER_REST_JARM_ENCRYPTED_ALG"

	jarmEncryptedEncFlagName  = "jarm-encrypted-enc"
	jarmEncryptedEncFlagUsage = "JARM content-encryption algorithm " +
		"(verifier.clientMetadata.authorizationEncryptedResponseEnc), e.g. A128CBC-HS256." +
		" Alternatively, this can be set with the following environment variable: " + jarmEncryptedEncEnvKey
	jarmEncryptedEncEnvKey = "VERIFIER_REST_JARM_ENCRYPTED_ENC"

	maxAgeFlagName  = "max-age"
	maxAgeFlagUsage = "Seconds before an initiated Presentation times out (verifier.maxAge). Default: 600." +
		" Alternatively, this can be set with the following environment variable: " + maxAgeEnvKey
	maxAgeEnvKey = "VERIFIER_REST_MAX_AGE"

	requestJWTEmbedFlagName  = "request-jwt-embed"
	requestJWTEmbedFlagUsage = "by_value or by_reference (verifier.requestJwt.embed). Default: by_reference." +
		" Alternatively, this can be set with the following environment variable: " + requestJWTEmbedEnvKey
	requestJWTEmbedEnvKey = "VERIFIER_REST_REQUEST_JWT_EMBED"

	presentationDefinitionEmbedFlagName  = "presentation-definition-embed"
	presentationDefinitionEmbedFlagUsage = "by_value or by_reference (verifier.presentationDefinition.embed). " +
		"Default: by_value." +
		" Alternatively, this can be set with the following environment variable: " + presentationDefinitionEmbedEnvKey
	presentationDefinitionEmbedEnvKey = "VERIFIER_REST_PRESENTATION_DEFINITION_EMBED"

	mdocDocTypeFlagName  = "mdoc-doc-type"
	mdocDocTypeFlagUsage = "Expected mDoc docType; empty accepts any." +
		" Alternatively, this can be set with the following environment variable: " + mdocDocTypeEnvKey
	mdocDocTypeEnvKey = "VERIFIER_REST_MDOC_DOC_TYPE"

	tlsServeCertPathFlagName  = "tls-serve-cert"
	tlsServeCertPathFlagUsage = "Path to the server certificate to use when serving HTTPS." +
		" Alternatively, this can be set with the following environment variable: " + tlsServeCertPathEnvKey
	tlsServeCertPathEnvKey = "VERIFIER_REST_TLS_SERVE_CERT"

	tlsServeKeyPathFlagName  = "tls-serve-key"
	tlsServeKeyPathFlagUsage = "Path to the private key to use when serving HTTPS." +
		" Alternatively, this can be set with the following environment variable: " + tlsServeKeyPathFlagEnvKey
	tlsServeKeyPathFlagEnvKey = "VERIFIER_REST_TLS_SERVE_KEY"

	logLevelFlagName  = "log-level"
	logLevelFlagUsage = "Sets the logging level." +
		" Possible values are [DEBUG, INFO, WARNING, ERROR, CRITICAL] (default is INFO)." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey
	logLevelEnvKey = "VERIFIER_REST_LOGLEVEL"
)

const (
	defaultMaxAgeSeconds = 600
	sweepInterval        = 30 * time.Second
	keyLoadRetries       = 5
	keyLoadRetrySleep    = 1 * time.Second
)

type verifierRestParameters struct {
	hostURL        string
	publicURL      string
	clientID       string
	clientIDScheme string

	jarSigningKeyPath string
	jarSigningAlg     string
	issuerCertPath    string

	responseMode    string
	jarmSignedAlg   string
	jarmEncAlg      string
	jarmEncEnc      string
	maxAgeSeconds   uint64
	requestJWTEmbed string
	pdEmbed         string
	mdocDocType     string

	tlsServeCertPath string
	tlsServeKeyPath  string
	logLevel         string
}

type server interface {
	ListenAndServe(host string, router http.Handler) error
	ListenAndServeTLS(host, certFile, keyFile string, router http.Handler) error
}

// HTTPServer represents an actual HTTP server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler) error {
	return http.ListenAndServe(host, router)
}

// ListenAndServeTLS starts the server using the standard Go HTTPS implementation.
func (s *HTTPServer) ListenAndServeTLS(host, certFile, keyFile string, router http.Handler) error {
	return http.ListenAndServeTLS(host, certFile, keyFile, router)
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd(srv server) *cobra.Command {
	startCmd := createStartCmd(srv)

	createFlags(startCmd)

	return startCmd
}

func createStartCmd(srv server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start verifier-rest",
		Long:  "Start the OpenID4VP verifier-rest service",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getVerifierRestParameters(cmd)
			if err != nil {
				return err
			}

			return startVerifierService(parameters, srv)
		},
	}
}

// nolint:funlen
func getVerifierRestParameters(cmd *cobra.Command) (*verifierRestParameters, error) {
	hostURL, err := cmdutils.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	publicURL, err := cmdutils.GetUserSetVarFromString(cmd, publicURLFlagName, publicURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	clientID, err := cmdutils.GetUserSetVarFromString(cmd, clientIDFlagName, clientIDEnvKey, false)
	if err != nil {
		return nil, err
	}

	clientIDScheme, err := cmdutils.GetUserSetVarFromString(cmd, clientIDSchemeFlagName, clientIDSchemeEnvKey, true)
	if err != nil {
		return nil, err
	}

	jarSigningKeyPath, err := cmdutils.GetUserSetVarFromString(cmd, jarSigningKeyFlagName, jarSigningKeyEnvKey, false)
	if err != nil {
		return nil, err
	}

	jarSigningAlg, err := cmdutils.GetUserSetVarFromString(cmd, jarSigningAlgFlagName, jarSigningAlgEnvKey, true)
	if err != nil {
		return nil, err
	}

	issuerCertPath, err := cmdutils.GetUserSetVarFromString(cmd, issuerCertFlagName, issuerCertEnvKey, false)
	if err != nil {
		return nil, err
	}

	responseMode, err := cmdutils.GetUserSetVarFromString(cmd, responseModeFlagName, responseModeEnvKey, true)
	if err != nil {
		return nil, err
	}

	jarmSignedAlg, err := cmdutils.GetUserSetVarFromString(cmd, jarmSignedAlgFlagName, jarmSignedAlgEnvKey, true)
	if err != nil {
		return nil, err
	}

	jarmEncAlg, err := cmdutils.GetUserSetVarFromString(cmd, jarmEncryptedAlgFlagName, jarmEncryptedAlgEnvKey, true)
	if err != nil {
		return nil, err
	}

	jarmEncEnc, err := cmdutils.GetUserSetVarFromString(cmd, jarmEncryptedEncFlagName, jarmEncryptedEncEnvKey, true)
	if err != nil {
		return nil, err
	}

	maxAgeStr, err := cmdutils.GetUserSetVarFromString(cmd, maxAgeFlagName, maxAgeEnvKey, true)
	if err != nil {
		return nil, err
	}

	maxAgeSeconds := uint64(defaultMaxAgeSeconds)

	if maxAgeStr != "" {
		maxAgeSeconds, err = strconv.ParseUint(maxAgeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", maxAgeFlagName, err)
		}
	}

	requestJWTEmbed, err := cmdutils.GetUserSetVarFromString(cmd, requestJWTEmbedFlagName, requestJWTEmbedEnvKey, true)
	if err != nil {
		return nil, err
	}

	pdEmbed, err := cmdutils.GetUserSetVarFromString(
		cmd, presentationDefinitionEmbedFlagName, presentationDefinitionEmbedEnvKey, true)
	if err != nil {
		return nil, err
	}

	mdocDocType, err := cmdutils.GetUserSetVarFromString(cmd, mdocDocTypeFlagName, mdocDocTypeEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsServeCertPath, err := cmdutils.GetUserSetVarFromString(cmd, tlsServeCertPathFlagName, tlsServeCertPathEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsServeKeyPath, err := cmdutils.GetUserSetVarFromString(cmd, tlsServeKeyPathFlagName, tlsServeKeyPathFlagEnvKey, true)
	if err != nil {
		return nil, err
	}

	logLevel, err := cmdutils.GetUserSetVarFromString(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	if clientIDScheme == "" {
		clientIDScheme = string(domain.ClientIDSchemePreRegistered)
	}

	if jarSigningAlg == "" {
		jarSigningAlg = string(jose.RS256)
	}

	if responseMode == "" {
		responseMode = string(domain.ResponseModeDirectPost)
	}

	if requestJWTEmbed == "" {
		requestJWTEmbed = string(domain.EmbedByReference)
	}

	if pdEmbed == "" {
		pdEmbed = string(domain.EmbedByValue)
	}

	return &verifierRestParameters{
		hostURL:           hostURL,
		publicURL:         publicURL,
		clientID:          clientID,
		clientIDScheme:    clientIDScheme,
		jarSigningKeyPath: jarSigningKeyPath,
		jarSigningAlg:     jarSigningAlg,
		issuerCertPath:    issuerCertPath,
		responseMode:      responseMode,
		jarmSignedAlg:     jarmSignedAlg,
		jarmEncAlg:        jarmEncAlg,
		jarmEncEnc:        jarmEncEnc,
		maxAgeSeconds:     maxAgeSeconds,
		requestJWTEmbed:   requestJWTEmbed,
		pdEmbed:           pdEmbed,
		mdocDocType:       mdocDocType,
		tlsServeCertPath:  tlsServeCertPath,
		tlsServeKeyPath:   tlsServeKeyPath,
		logLevel:          logLevel,
	}, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, "", "", hostURLFlagUsage)
	startCmd.Flags().StringP(publicURLFlagName, "", "", publicURLFlagUsage)
	startCmd.Flags().StringP(clientIDFlagName, "", "", clientIDFlagUsage)
	startCmd.Flags().StringP(clientIDSchemeFlagName, "", "", clientIDSchemeFlagUsage)
	startCmd.Flags().StringP(jarSigningKeyFlagName, "", "", jarSigningKeyFlagUsage)
	startCmd.Flags().StringP(jarSigningAlgFlagName, "", "", jarSigningAlgFlagUsage)
	startCmd.Flags().StringP(issuerCertFlagName, "", "", issuerCertFlagUsage)
	startCmd.Flags().StringP(responseModeFlagName, "", "", responseModeFlagUsage)
	startCmd.Flags().StringP(jarmSignedAlgFlagName, "", "", jarmSignedAlgFlagUsage)
	startCmd.Flags().StringP(jarmEncryptedAlgFlagName, "", "", jarmEncryptedAlgFlagUsage)
	startCmd.Flags().StringP(jarmEncryptedEncFlagName, "", "", jarmEncryptedEncFlagUsage)
	startCmd.Flags().StringP(maxAgeFlagName, "", "", maxAgeFlagUsage)
	startCmd.Flags().StringP(requestJWTEmbedFlagName, "", "", requestJWTEmbedFlagUsage)
	startCmd.Flags().StringP(presentationDefinitionEmbedFlagName, "", "", presentationDefinitionEmbedFlagUsage)
	startCmd.Flags().StringP(mdocDocTypeFlagName, "", "", mdocDocTypeFlagUsage)
	startCmd.Flags().StringP(tlsServeCertPathFlagName, "", "", tlsServeCertPathFlagUsage)
	startCmd.Flags().StringP(tlsServeKeyPathFlagName, "", "", tlsServeKeyPathFlagUsage)
	startCmd.Flags().StringP(logLevelFlagName, "", "INFO", logLevelFlagUsage)
}

func setLogLevel(logLevel string) error {
	if logLevel == "" {
		logLevel = "INFO"
	}

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level '%s': %w", logLevel, err)
	}

	log.SetLevel("", level)

	return nil
}

func jarmOptionFor(p *verifierRestParameters) domain.JARMOption {
	switch {
	case p.jarmSignedAlg != "" && p.jarmEncAlg != "":
		return domain.JARMOption{
			Kind: domain.JARMSignedAndEncrypted, SigningAlg: p.jarmSignedAlg,
			EncryptionAlg: p.jarmEncAlg, EncryptionEnc: p.jarmEncEnc,
		}
	case p.jarmEncAlg != "":
		return domain.JARMOption{Kind: domain.JARMEncrypted, EncryptionAlg: p.jarmEncAlg, EncryptionEnc: p.jarmEncEnc}
	case p.jarmSignedAlg != "":
		return domain.JARMOption{Kind: domain.JARMSigned, SigningAlg: p.jarmSignedAlg}
	default:
		return domain.JARMOption{Kind: domain.JARMUnsigned}
	}
}

// retrySigningKeyLoad and retryIssuerKeyLoad wrap key-file loading in a
// constant backoff, mirroring the retry the teacher wraps around its own
// slow-to-appear startup resources (a freshly mounted secret volume can
// race a container's first health check).
func retrySigningKeyLoad(path string) (crypto.Signer, error) {
	var key crypto.Signer

	err := backoff.Retry(func() error {
		k, loadErr := loadSigningKey(path)
		if loadErr != nil {
			return loadErr
		}

		key = k

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(keyLoadRetrySleep), keyLoadRetries))

	return key, err
}

func retryIssuerKeyLoad(path string) (*ecdsa.PublicKey, error) {
	var key *ecdsa.PublicKey

	err := backoff.Retry(func() error {
		k, loadErr := loadIssuerKey(path)
		if loadErr != nil {
			return loadErr
		}

		key = k

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(keyLoadRetrySleep), keyLoadRetries))

	return key, err
}

func startVerifierService(p *verifierRestParameters, srv server) error {
	if err := setLogLevel(p.logLevel); err != nil {
		return err
	}

	logger.Infof("logger level set to %s", p.logLevel)

	signingKey, err := retrySigningKeyLoad(p.jarSigningKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load jar signing key: %w", err)
	}

	issuerKey, err := retryIssuerKeyLoad(p.issuerCertPath)
	if err != nil {
		return fmt.Errorf("failed to load issuer cert: %w", err)
	}

	jarmOpt := jarmOptionFor(p)

	// This deployment has no flag/env key that sources a Wallet signing-key
	// resolver (spec §1 keeps Wallet key discovery out of scope), so a
	// Signed/SignedAndEncrypted JARM option can never be verified: every
	// direct_post.jwt submission would fail at jarm.Verifier.Unwrap instead
	// of at startup. Reject it here rather than let it pass validation and
	// break every request.
	if jarmOpt.Kind == domain.JARMSigned || jarmOpt.Kind == domain.JARMSignedAndEncrypted {
		return fmt.Errorf("%s requires a wallet signing key resolver, which this deployment does not configure",
			jarmSignedAlgFlagName)
	}

	reqBuilder := requestobject.New(requestobject.Config{
		ClientID:                    p.clientID,
		ClientIDScheme:              domain.ClientIDScheme(p.clientIDScheme),
		PublicURL:                   p.publicURL,
		SigningKey:                  signingKey,
		SigningAlg:                  jose.SignatureAlgorithm(p.jarSigningAlg),
		DefaultResponseMode:         domain.ResponseMode(p.responseMode),
		JARMOption:                  jarmOpt,
		RequestJWTEmbed:             domain.EmbedMode(p.requestJWTEmbed),
		PresentationDefinitionEmbed: domain.EmbedMode(p.pdEmbed),
	})

	presentationStore := store.New()

	val := validator.New(validator.Config{
		Store:         presentationStore,
		JARM:          jarm.New(nil),
		SDJwtVerifier: sdjwt.New(issuerKey),
		MdocVerifier:  mdoc.New(issuerKey, p.mdocDocType),
		ZKPVerifier:   zkp.NewChallengeVerifier(),
		ClientID:      p.clientID,
		DefaultJARM:   jarmOpt,
	})

	maxAge := time.Duration(p.maxAgeSeconds) * time.Second

	uc := usecase.New(usecase.Config{
		Store:     presentationStore,
		Builder:   reqBuilder,
		Validator: val,
		MaxAge:    maxAge,
	})

	sweeper := usecase.NewSweeper(presentationStore, presentationStore.List, maxAge, nil)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()

	go sweeper.Run(sweepCtx, sweepInterval)

	router := mux.NewRouter()

	mountHandlers(router, healthcheck.New())

	verifierService, err := verifier.New(&verifierops.Config{UseCase: uc})
	if err != nil {
		return fmt.Errorf("failed to init verifier operations: %w", err)
	}

	mountHandlers(router, verifierService)

	logger.Infof("starting verifier-rest server on host %s", p.hostURL)

	if p.tlsServeCertPath != "" {
		return srv.ListenAndServeTLS(p.hostURL, p.tlsServeCertPath, p.tlsServeKeyPath, constructCORSHandler(router))
	}

	return srv.ListenAndServe(p.hostURL, constructCORSHandler(router))
}

type controller interface {
	GetOperations() []restapi.Handler
}

func mountHandlers(router *mux.Router, c controller) {
	for _, handler := range c.GetOperations() {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}
}

func constructCORSHandler(handler http.Handler) http.Handler {
	return cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(handler)
}
