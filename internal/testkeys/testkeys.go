// Package testkeys generates throwaway RSA key material for tests.
package testkeys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet is an RSA key pair with a derived key id.
type KeySet struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
	KeyID   string
}

// Generate returns a fresh 2048-bit key pair. The kid is derived from the
// modulus so distinct keys never share one.
func Generate(t testing.TB) *KeySet {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA key generation failed: %v", err)
	}
	hash := sha256.Sum256(priv.PublicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(hash[:])[:12]
	return &KeySet{Private: priv, Public: &priv.PublicKey, KeyID: kid}
}

// PrivateKeyPEM encodes the private key as PKCS#8, the format used in
// service-account JSON files.
func (ks *KeySet) PrivateKeyPEM(t testing.TB) string {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(ks.Private)
	if err != nil {
		t.Fatalf("could not marshal private key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// PKCS1PrivateKeyPEM encodes the private key as PKCS#1.
func (ks *KeySet) PKCS1PrivateKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(ks.Private)}))
}

// CertificatePEM wraps the public key in a self-signed X.509 certificate,
// the shape served by x509 public key endpoints.
func (ks *KeySet) CertificatePEM(t testing.TB) string {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, ks.Public, ks.Private)
	if err != nil {
		t.Fatalf("could not create certificate: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// PublicKeyPEM encodes the public key as PKIX.
func (ks *KeySet) PublicKeyPEM(t testing.TB) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(ks.Public)
	if err != nil {
		t.Fatalf("could not marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// Sign signs claims with RS256 and stamps the kid header, using golang-jwt
// so tests exercise an implementation independent of the code under test.
func (ks *KeySet) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ks.KeyID
	signed, err := token.SignedString(ks.Private)
	if err != nil {
		t.Fatalf("could not sign token: %v", err)
	}
	return signed
}
