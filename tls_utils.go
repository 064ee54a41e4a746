// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// aesGcmNonce is the AES-GCM nonce length used for encrypted key PEMs.
const aesGcmNonce = 12

// tlsConfigBuilder assembles a *tls.Config for wss:// endpoints from
// certificate files, typically sourced from environment configuration.
type tlsConfigBuilder struct {
	caFile   string
	certFile string
	keyFile  string
	passFile string
}

func (b *tlsConfigBuilder) empty() bool {
	return b.caFile == "" && b.certFile == "" && b.keyFile == ""
}

func (b *tlsConfigBuilder) build() (*tls.Config, error) {
	config := &tls.Config{MinVersion: tls.VersionTLS12}

	if b.caFile != "" {
		pool, err := loadCACertPool(b.caFile)
		if err != nil {
			return nil, err
		}
		config.RootCAs = pool
	}

	if b.certFile != "" || b.keyFile != "" {
		if b.certFile == "" || b.keyFile == "" {
			return nil, errors.New(
				"client certificate requires both cert and key files",
			)
		}

		var cert tls.Certificate
		var err error
		if b.passFile != "" {
			cert, err = loadX509KeyPairWithPassword(
				b.certFile, b.keyFile, b.passFile,
			)
		} else {
			cert, err = tls.LoadX509KeyPair(b.certFile, b.keyFile)
		}
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// loadCACertPool loads a CA certificate pool from the specified file.
func loadCACertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("no certificates parsed from CA file")
	}
	return caCertPool, nil
}

// decryptPEMBlock decrypts a PEM block using PBKDF2 and AES-GCM.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, errors.New("PEM block is nil")
	}
	if len(block.Bytes) <= 8 {
		return nil, errors.New("PEM block is too short")
	}

	// Extract the salt (first 8 bytes).
	salt := block.Bytes[:8]

	// Derive key using PBKDF2.
	key := pbkdf2.Key(password, salt, 10000, 32, sha3.New256)

	// Decrypt the block using AES-GCM.
	return aesGCMDecrypt(block.Bytes[8:], key)
}

// aesGCMDecrypt decrypts data using AES-GCM mode.
func aesGCMDecrypt(encrypted, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(encrypted) < aesGcmNonce {
		return nil, errors.New("ciphertext in PEM block is too short")
	}

	nonce, ciphertext := encrypted[:aesGcmNonce], encrypted[aesGcmNonce:]

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return gcm.Open(nil, nonce, ciphertext, nil)
}

// loadX509KeyPairWithPassword loads a key pair whose private key PEM was
// encrypted with the PBKDF2/AES-GCM scheme above. x509.DecryptPEMBlock is
// deprecated due to insecurity and does not cover this scheme:
// https://github.com/golang/go/issues/8860
func loadX509KeyPairWithPassword(
	certFile,
	keyFile,
	passFile string,
) (tls.Certificate, error) {
	certPEMBlock, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEMBlock, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	password, err := os.ReadFile(passFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyDERBlock, _ := pem.Decode(keyPEMBlock)
	if keyDERBlock == nil {
		return tls.Certificate{}, errors.New(
			"failed to decode PEM block containing private key",
		)
	}

	decryptedDERBlock, err := decryptPEMBlock(keyDERBlock, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  keyDERBlock.Type,
		Bytes: decryptedDERBlock,
	})

	return tls.X509KeyPair(certPEMBlock, keyPEM)
}
