package core

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignSPKAC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	encoded, err := signSPKAC(key, "c4a11en9e")
	require.NoError(t, err)

	der, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var parsed struct {
		PublicKeyAndChallenge struct {
			Raw       asn1.RawContent
			Spki      asn1.RawValue
			Challenge string `asn1:"ia5"`
		}
		SignatureAlgorithm pkix.AlgorithmIdentifier
		Signature          asn1.BitString
	}
	rest, err := asn1.Unmarshal(der, &parsed)
	require.NoError(t, err)
	require.Empty(t, rest)

	require.Equal(t, "c4a11en9e", parsed.PublicKeyAndChallenge.Challenge)
	require.True(t, parsed.SignatureAlgorithm.Algorithm.Equal(oidMD5WithRSA))

	pub, err := x509.ParsePKIXPublicKey(parsed.PublicKeyAndChallenge.Spki.FullBytes)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(pub))

	digest := md5.Sum(parsed.PublicKeyAndChallenge.Raw)
	err = rsa.VerifyPKCS1v15(pub.(*rsa.PublicKey), crypto.MD5, digest[:], parsed.Signature.RightAlign())
	require.NoError(t, err)
}
