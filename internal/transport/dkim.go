package transport

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMSigner adds a DKIM-Signature header to outbound messages.
type DKIMSigner struct {
	domain   string
	selector string
	key      crypto.Signer
}

// NewDKIMSigner parses a PEM private key (PKCS#1 RSA or PKCS#8).
func NewDKIMSigner(domain, selector, privateKeyPEM string) (*DKIMSigner, error) {
	if domain == "" || selector == "" {
		return nil, errors.New("dkim: domain and selector are required")
	}
	key, err := parseSigningKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &DKIMSigner{domain: domain, selector: selector, key: key}, nil
}

func parseSigningKey(s string) (crypto.Signer, error) {
	// Keys passed through env files often carry literal "\n".
	s = strings.ReplaceAll(strings.TrimSpace(s), `\n`, "\n")
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("dkim: private key is not PEM encoded")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}
	signer, ok := k.(crypto.Signer)
	if !ok {
		return nil, errors.New("dkim: private key cannot sign")
	}
	return signer, nil
}

// Domain returns the signing domain (d=).
func (s *DKIMSigner) Domain() string { return s.domain }

// Sign returns raw with a DKIM-Signature header prepended.
func (s *DKIMSigner) Sign(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	err := dkim.Sign(&out, bytes.NewReader(raw), &dkim.SignOptions{
		Domain:   s.domain,
		Selector: s.selector,
		Signer:   s.key,
	})
	if err != nil {
		return nil, fmt.Errorf("dkim: sign: %w", err)
	}
	return out.Bytes(), nil
}
