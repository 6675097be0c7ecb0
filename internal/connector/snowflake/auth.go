package snowflake

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	gosnowflake "github.com/snowflakedb/gosnowflake"
)

// buildJWTDSN switches dsn to key pair authentication with the RSA key
// stored at keyPath.
func buildJWTDSN(dsn, keyPath string) (string, error) {
	sfConfig, err := parseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("read private key file %q: %w", keyPath, err)
	}
	key, err := parsePrivateKey(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", keyPath, err)
	}

	sfConfig.Password = ""
	sfConfig.Authenticator = gosnowflake.AuthTypeJwt
	sfConfig.PrivateKey = key

	out, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("rebuild DSN: %w", err)
	}
	return out, nil
}

// parseDSN accepts the password-less user@account/db form used for key pair
// service users, which gosnowflake.ParseDSN otherwise rejects.
func parseDSN(dsn string) (*gosnowflake.Config, error) {
	cfg, err := gosnowflake.ParseDSN(dsn)
	if err == nil || !strings.Contains(err.Error(), "password is empty") {
		return cfg, err
	}
	at := strings.Index(dsn, "@")
	if at <= 0 || strings.Contains(dsn[:at], ":") {
		return nil, err
	}
	return gosnowflake.ParseDSN(dsn[:at] + ":_" + dsn[at:])
}

// parsePrivateKey decodes an unencrypted PKCS#1 or PKCS#8 RSA key.
func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "ENCRYPTED PRIVATE KEY":
		return nil, fmt.Errorf("encrypted private keys are not supported; export the key without a passphrase")
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, Snowflake key pair auth needs RSA", key)
	}
	return rsaKey, nil
}
