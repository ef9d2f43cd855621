package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bookings-auth/internal/testutil"
	"github.com/StricklySoft/bookings-auth/internal/testutil/idp"
	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

func TestDecodeCertificate_RSA(t *testing.T) {
	t.Parallel()

	key := idp.NewRSAKey(t, "rsa-1")

	pub, err := DecodeCertificate(key.Certificate())
	require.NoError(t, err)

	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok, "want *rsa.PublicKey, got %T", pub)
	assert.True(t, rsaPub.Equal(key.Public()))
}

func TestDecodeCertificate_EC(t *testing.T) {
	t.Parallel()

	key := idp.NewECKey(t, "ec-1")

	pub, err := DecodeCertificate(key.Certificate())
	require.NoError(t, err)

	ecPub, ok := pub.(*ecdsa.PublicKey)
	require.True(t, ok, "want *ecdsa.PublicKey, got %T", pub)
	assert.True(t, ecPub.Equal(key.Public()))
}

func TestDecodeCertificate_SurroundingWhitespace(t *testing.T) {
	t.Parallel()

	key := idp.NewRSAKey(t, "rsa-1")

	_, err := DecodeCertificate("  " + key.Certificate() + "\n")
	require.NoError(t, err)
}

func TestDecodeCertificate_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty", encoded: ""},
		{name: "whitespace only", encoded: "   "},
		{name: "not base64", encoded: "%%%not-base64%%%"},
		{name: "base64 but not DER", encoded: base64.StdEncoding.EncodeToString([]byte("hello bookings"))},
		{name: "truncated DER", encoded: truncatedCertificate(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pub, err := DecodeCertificate(tt.encoded)
			assert.Nil(t, pub)
			testutil.RequireErrorCode(t, err, sserr.CodeInvalidCertificate)
		})
	}
}

func TestToPEM_WrapsLines(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("A", 150)
	lines := strings.Split(strings.TrimSpace(string(toPEM(body))), "\n")

	require.Len(t, lines, 5)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----", lines[0])
	assert.Len(t, lines[1], 64)
	assert.Len(t, lines[2], 64)
	assert.Len(t, lines[3], 22)
	assert.Equal(t, "-----END CERTIFICATE-----", lines[4])
}

func truncatedCertificate(t *testing.T) string {
	t.Helper()
	der := idp.NewECKey(t, "ec-trunc").CertDER
	return base64.StdEncoding.EncodeToString(der[:len(der)/2])
}
