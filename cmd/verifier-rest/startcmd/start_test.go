/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

type mockServer struct{}

func (s *mockServer) ListenAndServe(host string, handler http.Handler) error {
	return nil
}

func (s *mockServer) ListenAndServeTLS(host, certPath, keyPath string, handler http.Handler) error {
	return nil
}

func TestListenAndServe(t *testing.T) {
	var w HTTPServer

	err := w.ListenAndServe("wronghost", nil)
	require.Error(t, err)
}

func TestStartCmdContents(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start verifier-rest", startCmd.Short)

	checkFlagPropertiesCorrect(t, startCmd, hostURLFlagName, hostURLFlagUsage)
}

func TestStartCmdWithBlankArg(t *testing.T) {
	t.Run("test blank host url arg", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		startCmd.SetArgs([]string{"--" + hostURLFlagName, ""})

		err := startCmd.Execute()
		require.Error(t, err)
		require.Equal(t, "host-url value is empty", err.Error())
	})
}

func TestStartCmdWithMissingArg(t *testing.T) {
	t.Run("test missing host url arg", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		err := startCmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), hostURLFlagName)
	})
}

func TestSetLogLevel(t *testing.T) {
	t.Run("defaults to INFO", func(t *testing.T) {
		require.NoError(t, setLogLevel(""))
	})

	t.Run("rejects an unknown level", func(t *testing.T) {
		require.Error(t, setLogLevel("NOT-A-LEVEL"))
	})
}

func TestJarmOptionFor(t *testing.T) {
	t.Run("defaults to unsigned", func(t *testing.T) {
		opt := jarmOptionFor(&verifierRestParameters{})
		require.Equal(t, "unsigned", string(opt.Kind))
	})

	t.Run("signed only", func(t *testing.T) {
		opt := jarmOptionFor(&verifierRestParameters{jarmSignedAlg: "ES256"})
		require.Equal(t, "signed", string(opt.Kind))
		require.Equal(t, "ES256", opt.SigningAlg)
	})

	t.Run("encrypted only", func(t *testing.T) {
		opt := jarmOptionFor(&verifierRestParameters{jarmEncAlg: "ECDH-ES", jarmEncEnc: "A128GCM"})
		require.Equal(t, "encrypted", string(opt.Kind))
		require.Equal(t, "A128GCM", opt.EncryptionEnc)
	})

	t.Run("signed and encrypted", func(t *testing.T) {
		opt := jarmOptionFor(&verifierRestParameters{jarmSignedAlg: "ES256", jarmEncAlg: "ECDH-ES", jarmEncEnc: "A128GCM"})
		require.Equal(t, "signed_and_encrypted", string(opt.Kind))
	})
}

func writeTempPEM(t *testing.T, block *pem.Block) string {
	t.Helper()

	f, err := os.CreateTemp("", "*.pem")
	require.NoError(t, err)

	defer f.Close()

	require.NoError(t, pem.Encode(f, block))

	t.Cleanup(func() { os.Remove(f.Name()) })

	return f.Name()
}

func generateTestSigningKeyFile(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return writeTempPEM(t, &pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func generateTestIssuerCertFile(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-issuer"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return writeTempPEM(t, &pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestStartCmdValidArgs(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	args := []string{
		"--" + hostURLFlagName, "localhost:8080",
		"--" + publicURLFlagName, "https://verifier.example.com",
		"--" + clientIDFlagName, "https://verifier.example.com",
		"--" + jarSigningKeyFlagName, generateTestSigningKeyFile(t),
		"--" + issuerCertFlagName, generateTestIssuerCertFile(t),
	}
	startCmd.SetArgs(args)

	require.NoError(t, startCmd.Execute())
}

func TestStartCmdSignedJARMWithoutResolver(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	args := []string{
		"--" + hostURLFlagName, "localhost:8080",
		"--" + publicURLFlagName, "https://verifier.example.com",
		"--" + clientIDFlagName, "https://verifier.example.com",
		"--" + jarSigningKeyFlagName, generateTestSigningKeyFile(t),
		"--" + issuerCertFlagName, generateTestIssuerCertFile(t),
		"--" + jarmSignedAlgFlagName, "ES256",
	}
	startCmd.SetArgs(args)

	err := startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), jarmSignedAlgFlagName)
}

func TestStartCmdBadSigningKey(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	badKeyFile := writeTempPEM(t, &pem.Block{Type: "PRIVATE KEY", Bytes: []byte("not a key")})

	args := []string{
		"--" + hostURLFlagName, "localhost:8080",
		"--" + publicURLFlagName, "https://verifier.example.com",
		"--" + clientIDFlagName, "https://verifier.example.com",
		"--" + jarSigningKeyFlagName, badKeyFile,
		"--" + issuerCertFlagName, generateTestIssuerCertFile(t),
	}
	startCmd.SetArgs(args)

	err := startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "jar signing key")
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName, flagUsage string) {
	t.Helper()

	flag := cmd.Flag(flagName)
	require.NotNil(t, flag)
	require.Equal(t, flagUsage, flag.Usage)
	require.Empty(t, flag.Value.String())
}
