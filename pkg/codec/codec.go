// Package codec is the transform applied to blob payloads on their way to
// and from disk: optional compression first, then optional authenticated
// encryption. Decode reverses the order, and Decode(Encode(x)) == x for
// every x and every configuration.
//
// The configuration is store-wide, not recorded per blob. Changing it on a
// store that already holds blobs makes the old files undecodable under the
// new configuration. That is an operational hazard for the operator to
// manage, not a condition the codec detects.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jacktea/gitblobts/pkg/xerrors"
)

// KeySize is the size in bytes of the symmetric encryption key.
const KeySize = chacha20poly1305.KeySize

// Options describes the transform pair. The zero value is a pass-through
// codec (no compression, no encryption).
type Options struct {
	// Compression selects the first encode stage. Empty means none.
	Compression Compression

	// Key enables XChaCha20-Poly1305 encryption as the second encode
	// stage when non-nil. Must be exactly KeySize bytes.
	Key []byte
}

// EncryptionEnabled reports whether the encryption stage runs.
func (o Options) EncryptionEnabled() bool {
	return len(o.Key) != 0
}

// Validate ensures the configuration is usable.
func (o Options) Validate() error {
	if _, err := ParseCompression(string(o.Compression)); err != nil {
		return err
	}
	if o.EncryptionEnabled() && len(o.Key) != KeySize {
		return fmt.Errorf("codec: encryption key must be %d bytes, got %d", KeySize, len(o.Key))
	}
	return nil
}

// Codec applies the configured transform pair.
type Codec struct {
	compression Compression
	aead        cipher.AEAD
}

// New builds a Codec from opts.
func New(opts Options) (*Codec, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Codec{compression: opts.Compression}
	if opts.EncryptionEnabled() {
		aead, err := chacha20poly1305.NewX(opts.Key)
		if err != nil {
			return nil, fmt.Errorf("codec: creating XChaCha20-Poly1305 cipher: %w", err)
		}
		c.aead = aead
	}
	return c, nil
}

// Encode transforms raw payload bytes into their on-disk form.
func (c *Codec) Encode(raw []byte) ([]byte, error) {
	data, err := compress(raw, c.compression)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindCompression, "codec.Encode", "", err)
	}
	if c.aead == nil {
		return data, nil
	}
	return encrypt(data, c.aead)
}

// Decode reverses Encode. Failures keep their cause apart: an undecryptable
// payload (wrong key, tampered ciphertext, bad authentication tag) reports
// KindAuthentication, a corrupted compressed stream reports KindCompression.
func (c *Codec) Decode(encoded []byte) ([]byte, error) {
	data := encoded
	if c.aead != nil {
		var err error
		data, err = decrypt(data, c.aead)
		if err != nil {
			return nil, err
		}
	}
	raw, err := decompress(data, c.compression)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindCompression, "codec.Decode", "", err)
	}
	return raw, nil
}

// GenerateKey returns a fresh random encryption key. The key should be
// stored safely: losing it makes encrypted blobs unreadable, and anyone
// holding it can decrypt them.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("codec: generating key: %w", err)
	}
	return key, nil
}
