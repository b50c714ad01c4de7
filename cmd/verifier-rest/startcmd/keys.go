/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// loadSigningKey reads a PEM-encoded PKCS#8 private key (verifier.jar.signing.key)
// and returns it as a crypto.Signer, the type go-jose's Signer option takes.
func loadSigningKey(path string) (crypto.Signer, error) {
	raw, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read jar signing key %s: %w", path, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s does not contain PEM data", path)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, rsaErr := x509.ParsePKCS1PrivateKey(block.Bytes)
		if rsaErr != nil {
			return nil, fmt.Errorf("failed to parse jar signing key %s: %w", path, err)
		}

		return rsaKey, nil
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%s does not contain a signing key", path)
	}

	return signer, nil
}

// loadIssuerKey reads a PEM-encoded X.509 certificate (verifier.issuer.cert)
// and returns its EC public key, used to verify SD-JWT and mDoc Issuer
// signatures.
func loadIssuerKey(path string) (*ecdsa.PublicKey, error) {
	raw, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read issuer cert %s: %w", path, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s does not contain PEM data", path)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer cert %s: %w", path, err)
	}

	key, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s does not contain an EC public key", path)
	}

	return key, nil
}
