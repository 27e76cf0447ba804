// Package security provisions and loads the relay's local key material.
// The keystore is a PEM bundle holding one self-signed certificate and a
// private key encrypted with the passphrase from KEYSTORE_PASSWORD. The
// server never modifies the file at runtime.
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"
)

const certificateCommonName = "HelpHubServer"

// Generate writes a fresh self-signed keystore to path. Used by the
// one-shot keygen command; refuses to overwrite an existing file.
func Generate(path, password string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keystore %s already exists", path)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixMilli()),
		Subject:               pkix.Name{CommonName: certificateCommonName},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	//nolint:staticcheck // PEM encryption is the keystore format contract.
	keyBlock, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY",
		x509.MarshalPKCS1PrivateKey(key), []byte(password), x509.PEMCipherAES256)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return err
	}
	return pem.Encode(f, keyBlock)
}

// LoadTLS reads the keystore and unlocks the private key with password.
func LoadTLS(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read keystore %s: %w", path, err)
	}

	var cert tls.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert.Certificate = append(cert.Certificate, block.Bytes)
		case "RSA PRIVATE KEY":
			der := block.Bytes
			//nolint:staticcheck // see Generate.
			if x509.IsEncryptedPEMBlock(block) {
				//nolint:staticcheck
				der, err = x509.DecryptPEMBlock(block, []byte(password))
				if err != nil {
					return tls.Certificate{}, fmt.Errorf("unlock private key: %w", err)
				}
			}
			key, err := x509.ParsePKCS1PrivateKey(der)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("parse private key: %w", err)
			}
			cert.PrivateKey = key
		}
	}
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return tls.Certificate{}, errors.New("keystore holds no usable certificate and key")
	}
	return cert, nil
}
