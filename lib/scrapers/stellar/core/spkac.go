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
)

// md5WithRSAEncryption, the algorithm <keygen> historically signed
// SPKAC blobs with.
var oidMD5WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 4}

type publicKeyAndChallenge struct {
	Spki      asn1.RawValue
	Challenge string `asn1:"ia5"`
}

type signedPublicKeyAndChallenge struct {
	PublicKeyAndChallenge publicKeyAndChallenge
	SignatureAlgorithm    pkix.AlgorithmIdentifier
	Signature             asn1.BitString
}

// signSPKAC emulates the browser <keygen> element: it binds the public
// key to the server-issued challenge in the Netscape SPKI format and
// returns the base64 form submitted as the keygen field's value.
func signSPKAC(key *rsa.PrivateKey, challenge string) (string, error) {
	spkiDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", err
	}

	pkac := publicKeyAndChallenge{
		Spki:      asn1.RawValue{FullBytes: spkiDER},
		Challenge: challenge,
	}
	tbs, err := asn1.Marshal(pkac)
	if err != nil {
		return "", err
	}

	digest := md5.Sum(tbs)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.MD5, digest[:])
	if err != nil {
		return "", err
	}

	der, err := asn1.Marshal(signedPublicKeyAndChallenge{
		PublicKeyAndChallenge: pkac,
		SignatureAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  oidMD5WithRSA,
			Parameters: asn1.NullRawValue,
		},
		Signature: asn1.BitString{
			Bytes:     signature,
			BitLength: len(signature) * 8,
		},
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
