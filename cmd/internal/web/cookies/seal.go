package cookies

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const valueClaim = "v"

// Sealer encrypts and authenticates cookie values with PASETO v4.local.
//
// Each sealed value is bound to the cookie name through both the audience claim
// and the implicit assertion, so a value lifted from one cookie cannot be
// replayed into another.
type Sealer struct {
	key paseto.V4SymmetricKey
}

// NewSealer builds a Sealer from a 32-byte key in hex.
func NewSealer(keyHex string) (*Sealer, error) {
	key, err := paseto.V4SymmetricKeyFromHex(keyHex)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &Sealer{key: key}, nil
}

// NewEphemeralSealer generates a random key. Cookies sealed with it do not
// survive a restart.
func NewEphemeralSealer() *Sealer {
	return &Sealer{key: paseto.NewV4SymmetricKey()}
}

// KeyHex exports the key so an ephemeral key can be logged once or persisted.
func (s *Sealer) KeyHex() string {
	return s.key.ExportHex()
}

// Seal returns the encrypted form of value for cookie name, valid until exp.
func (s *Sealer) Seal(name, value string, now, exp time.Time) string {
	tok := paseto.NewToken()
	tok.SetAudience(name)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString(valueClaim, value)

	return tok.V4Encrypt(s.key, []byte(name))
}

// Open decrypts a value sealed for cookie name. Any decoding, authentication
// or validity failure yields ErrTampered.
func (s *Sealer) Open(name, sealed string, now time.Time) (string, error) {
	// Fresh parser per call; the default expiry rule reads the wall clock.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.ForAudience(name))
	p.AddRule(paseto.ValidAt(now))

	parsed, err := p.ParseV4Local(s.key, sealed, []byte(name))
	if err != nil {
		return "", ErrTampered
	}

	v, err := parsed.GetString(valueClaim)
	if err != nil {
		return "", ErrTampered
	}
	return v, nil
}
