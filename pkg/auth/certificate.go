package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

const (
	pemCertificateType = "CERTIFICATE"

	// pemLineLength is the line width PEM encoders emit.
	pemLineLength = 64
)

// DecodeCertificate decodes one x5c entry, a standard base64 DER X.509
// certificate, and returns the public key it carries. The certificate's
// validity window and chain are not checked; the key set document is the
// trust anchor.
//
// Any failure returns an error with code [sserr.CodeInvalidCertificate].
func DecodeCertificate(encoded string) (crypto.PublicKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, sserr.New(sserr.CodeInvalidCertificate, "certificate is empty")
	}

	block, _ := pem.Decode(toPEM(encoded))
	if block == nil || block.Type != pemCertificateType {
		return nil, sserr.New(sserr.CodeInvalidCertificate, "certificate is not valid base64")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInvalidCertificate, "failed to parse certificate")
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return pub, nil
	default:
		return nil, sserr.Newf(sserr.CodeInvalidCertificate,
			"unsupported certificate key type %T", cert.PublicKey)
	}
}

// toPEM frames a base64 body as a PEM certificate block.
func toPEM(body string) []byte {
	var b strings.Builder
	b.Grow(len(body) + len(body)/pemLineLength + 64)
	b.WriteString("-----BEGIN " + pemCertificateType + "-----\n")
	for len(body) > pemLineLength {
		b.WriteString(body[:pemLineLength])
		b.WriteByte('\n')
		body = body[pemLineLength:]
	}
	b.WriteString(body)
	b.WriteString("\n-----END " + pemCertificateType + "-----\n")
	return []byte(b.String())
}
