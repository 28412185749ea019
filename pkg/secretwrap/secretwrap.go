package secretwrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// Params holds the Argon2id parameters used to derive the wrapping key.
// They are encoded into the blob so unwrap derives the same key regardless
// of where the blob was produced.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the default Argon2id parameters
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024, // 64MB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Wrapper performs authenticated encryption of secret material under a
// PIN-derived key
type Wrapper struct {
	params Params
}

// NewWrapper creates a new Wrapper with default parameters
func NewWrapper() *Wrapper {
	return &Wrapper{params: DefaultParams()}
}

// NewWrapperWithParams creates a Wrapper with explicit parameters
func NewWrapperWithParams(params Params) *Wrapper {
	return &Wrapper{params: params}
}

// Wrap encrypts the secret under a key derived from the PIN.
// The returned blob is self-describing:
//
//	$wrapped$v=1$m=65536,t=3,p=2$<salt>$<nonce>$<ciphertext>
//
// Salt, nonce and ciphertext are raw-std base64. The GCM tag inside the
// ciphertext is what makes a wrong PIN detectable on unwrap.
func (w *Wrapper) Wrap(secret []byte, pin string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret cannot be empty")
	}
	if pin == "" {
		return "", errors.New("pin cannot be empty")
	}

	salt := make([]byte, w.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(pin),
		salt,
		w.params.Iterations,
		w.params.Memory,
		w.params.Parallelism,
		w.params.KeyLength,
	)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nil, nonce, secret, nil)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Nonce := base64.RawStdEncoding.EncodeToString(nonce)
	b64Ciphertext := base64.RawStdEncoding.EncodeToString(ciphertext)

	blob := fmt.Sprintf(
		"$wrapped$v=1$m=%d,t=%d,p=%d$%s$%s$%s",
		w.params.Memory,
		w.params.Iterations,
		w.params.Parallelism,
		b64Salt,
		b64Nonce,
		b64Ciphertext,
	)

	return blob, nil
}

// Unwrap decrypts a blob produced by Wrap. A wrong PIN fails the GCM
// authentication check and surfaces as ErrCodeWrongPin, never as garbage
// plaintext.
func (w *Wrapper) Unwrap(blob, pin string) ([]byte, error) {
	if blob == "" || pin == "" {
		return nil, errors.New("blob and pin cannot be empty")
	}

	parts := strings.Split(blob, "$")
	if len(parts) != 7 {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid blob format")
	}

	if parts[1] != "wrapped" {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "incompatible blob type")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid blob format")
	}
	if version != 1 {
		return nil, clinicerr.Newf(clinicerr.ErrCodeBadWrapping, "unsupported blob version: %d", version)
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid blob format")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid salt encoding")
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid nonce encoding")
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(parts[6])
	if err != nil {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid ciphertext encoding")
	}

	key := argon2.IDKey(
		[]byte(pin),
		salt,
		iterations,
		memory,
		parallelism,
		w.params.KeyLength,
	)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, clinicerr.New(clinicerr.ErrCodeBadWrapping, "invalid nonce length")
	}

	secret, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// GCM authentication failure: the PIN did not derive the wrapping key
		return nil, clinicerr.WrongPin()
	}

	return secret, nil
}
