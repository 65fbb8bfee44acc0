package grantor

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/contentsdk/pkg/errors"
)

// parsePrivateKey decodes an RSA key in PKCS#1 or PKCS#8 form. Legacy
// encrypted PEM blocks (Proc-Type: 4,ENCRYPTED) are decrypted with passphrase.
func parsePrivateKey(pemBytes []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.ErrInvalidConfig("private key is not PEM encoded")
	}
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		return nil, errors.ErrInvalidConfig("PKCS#8 encrypted keys are not supported; decrypt the key or use a legacy encrypted PEM")
	}

	//nolint:staticcheck
	if !x509.IsEncryptedPEMBlock(block) {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, errors.ErrInvalidConfig("invalid RSA private key").WithCause(err)
		}
		return key, nil
	}

	if passphrase == "" {
		return nil, errors.ErrInvalidConfig("private key is encrypted but no passphrase was configured")
	}
	//nolint:staticcheck
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase))
	if err != nil {
		return nil, errors.ErrInvalidConfig("failed to decrypt private key").WithCause(err)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.ErrInvalidConfig("invalid RSA private key").WithCause(err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.ErrInvalidConfig("private key is not RSA")
	}
	return key, nil
}
