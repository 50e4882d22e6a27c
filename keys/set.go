package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Set is one immutable snapshot of the provider's public keys. A refresh
// replaces the whole Set.
type Set struct {
	pems      map[string]string
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	expiresAt time.Time
	refreshAt time.Time
}

// PEM returns the PEM encoding of the key with id kid.
func (s *Set) PEM(kid string) (string, bool) {
	p, ok := s.pems[kid]
	return p, ok
}

// Key returns the parsed public key with id kid.
func (s *Set) Key(kid string) (*rsa.PublicKey, bool) {
	k, ok := s.keys[kid]
	return k, ok
}

// KeyIDs returns the key ids in the set, sorted.
func (s *Set) KeyIDs() []string {
	ids := make([]string, 0, len(s.pems))
	for kid := range s.pems {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of keys.
func (s *Set) Len() int {
	return len(s.pems)
}

// FetchedAt returns when the set was fetched.
func (s *Set) FetchedAt() time.Time {
	return s.fetchedAt
}

// ExpiresAt returns when the set stops being served without a refresh.
func (s *Set) ExpiresAt() time.Time {
	return s.expiresAt
}

func (s *Set) fresh(now time.Time) bool {
	return s != nil && now.Before(s.expiresAt)
}

func (s *Set) has(kid string) bool {
	_, ok := s.pems[kid]
	return ok
}

// parseSet decodes a public key response. Two shapes are accepted: a JSON
// object mapping key id to a PEM certificate or public key, and a JWK Set.
// Entries that are not RSA public keys are skipped and reported.
func parseSet(body []byte) (*Set, []string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	set := &Set{
		pems: make(map[string]string),
		keys: make(map[string]*rsa.PublicKey),
	}

	var (
		skipped []string
		err     error
	)
	if _, ok := probe["keys"]; ok {
		skipped, err = set.addJWKS(body)
	} else {
		skipped, err = set.addPEMs(probe)
	}
	if err != nil {
		return nil, nil, err
	}

	if set.Len() == 0 {
		return nil, skipped, errors.New("response contains no usable RSA public keys")
	}

	return set, skipped, nil
}

func (s *Set) addJWKS(body []byte) ([]string, error) {
	jwks, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	var skipped []string
	for i := 0; i < jwks.Len(); i++ {
		key, ok := jwks.Key(i)
		if !ok {
			continue
		}
		kid, ok := key.KeyID()
		if !ok || kid == "" {
			skipped = append(skipped, fmt.Sprintf("#%d", i))
			continue
		}
		if key.KeyType() != jwa.RSA() {
			skipped = append(skipped, kid)
			continue
		}

		pub, err := rsaPublicKey(key)
		if err != nil {
			skipped = append(skipped, kid)
			continue
		}

		encoded, err := encodePublicKey(pub)
		if err != nil {
			skipped = append(skipped, kid)
			continue
		}

		s.keys[kid] = pub
		s.pems[kid] = encoded
	}

	return skipped, nil
}

func (s *Set) addPEMs(entries map[string]json.RawMessage) ([]string, error) {
	var skipped []string
	for kid, raw := range entries {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			skipped = append(skipped, kid)
			continue
		}

		pub, err := parsePublicKeyPEM(encoded)
		if err != nil {
			skipped = append(skipped, kid)
			continue
		}

		s.keys[kid] = pub
		s.pems[kid] = encoded
	}
	sort.Strings(skipped)

	return skipped, nil
}

// parsePublicKeyPEM accepts an X.509 certificate or a public key PEM block.
func parsePublicKeyPEM(encoded string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if block.Type == "CERTIFICATE" {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		key, err := jwk.Import(cert.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to import certificate key: %w", err)
		}
		return rsaPublicKey(key)
	}

	key, err := jwk.ParseKey([]byte(encoded), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return rsaPublicKey(key)
}

func rsaPublicKey(key jwk.Key) (*rsa.PublicKey, error) {
	pubKey, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	var raw any
	if err := jwk.Export(pubKey, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}

	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, not an RSA public key", raw)
	}
	return pub, nil
}

func encodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
