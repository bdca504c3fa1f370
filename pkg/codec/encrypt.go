package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jacktea/gitblobts/pkg/xerrors"
)

// encryptedBlobVersion is the version byte prepended to every encrypted
// payload. It is included as additional authenticated data, so tampering
// with it fails authentication rather than selecting a bogus format.
const encryptedBlobVersion byte = 0x01

// encryptedOverhead is the byte overhead per encrypted payload:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const encryptedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// encrypt seals data into the layout
//
//	[version: 1 byte][nonce: 24 bytes, random][ciphertext+tag]
func encrypt(data []byte, aead cipher.AEAD) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "codec.Encode", "", err)
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, encryptedOverhead+len(data))
	out[0] = encryptedBlobVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], data, out[:1]), nil
}

// decrypt opens a payload produced by encrypt. Every failure mode here is
// an authentication failure from the caller's point of view: a short blob,
// an unknown version byte, a wrong key, or tampered ciphertext.
func decrypt(blob []byte, aead cipher.AEAD) ([]byte, error) {
	if len(blob) < encryptedOverhead {
		return nil, xerrors.Wrap(xerrors.KindAuthentication, "codec.Decode", "",
			fmt.Errorf("encrypted payload is %d bytes, minimum is %d", len(blob), encryptedOverhead))
	}
	if blob[0] != encryptedBlobVersion {
		return nil, xerrors.Wrap(xerrors.KindAuthentication, "codec.Decode", "",
			fmt.Errorf("encrypted payload version %d is not supported", blob[0]))
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]
	raw, err := aead.Open(nil, nonce, ciphertext, blob[:1])
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindAuthentication, "codec.Decode", "",
			fmt.Errorf("AEAD open failed (wrong key or tampered data): %w", err))
	}
	return raw, nil
}
