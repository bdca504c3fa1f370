// Package blobname maps nanosecond UTC timestamps to filenames and back.
//
// A filename is the only index entry a blob ever gets. Version 1 names are
// 41 lowercase characters:
//
//	<tag:1><timestamp:16 hex><disambiguator:24 hex>
//
// The timestamp field is the int64 nanosecond instant with its sign bit
// flipped, big-endian, hex encoded. Flipping the sign bit maps the full
// int64 range onto uint64 such that lexicographic order on the hex string
// equals numeric order on the timestamp, pre-epoch instants included.
//
// The disambiguator is 96 bits of fresh randomness per name. It carries no
// retrieval semantics; it exists so that independent writers producing blobs
// at the identical instant never collide on a filename.
package blobname

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/jacktea/gitblobts/pkg/xerrors"
)

// Version tags a filename format. The tag is the first character of the
// name, so old files stay readable when the encoding evolves.
type Version byte

const (
	// Version1 is the only format this release writes or reads.
	Version1 Version = '1'

	// CurrentVersion is the format used for new names.
	CurrentVersion = Version1
)

const (
	timestampLen     = 16 // hex chars, 8 bytes
	disambiguatorLen = 24 // hex chars, 12 bytes
	randomBytes      = disambiguatorLen / 2

	// NameLen is the length of every version 1 filename.
	NameLen = 1 + timestampLen + disambiguatorLen
)

// Encode produces a filename for the given instant, drawing a fresh
// disambiguator from random on every call. A nil random uses crypto/rand.
func Encode(timeUTC int64, version Version, random io.Reader) (string, error) {
	if version != Version1 {
		return "", xerrors.E(xerrors.KindUnsupported, "blobname.Encode", string(version))
	}
	if random == nil {
		random = rand.Reader
	}

	var suffix [randomBytes]byte
	if _, err := io.ReadFull(random, suffix[:]); err != nil {
		return "", xerrors.Wrap(xerrors.KindInternal, "blobname.Encode", "", err)
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timeUTC)^(1<<63))

	buf := make([]byte, 0, NameLen)
	buf = append(buf, byte(version))
	buf = append(buf, hex.EncodeToString(ts[:])...)
	buf = append(buf, hex.EncodeToString(suffix[:])...)
	return string(buf), nil
}

// Decode recovers the timestamp and format version from a filename. It
// returns ok=false for anything that is not a recognized name: wrong
// length, unknown version tag, or bytes outside the lowercase hex charset.
// Unrecognized names are a skip condition for directory scans, not an
// error, so Decode never fails. It never opens the file.
func Decode(name string) (timeUTC int64, version Version, ok bool) {
	if len(name) != NameLen {
		return 0, 0, false
	}
	if Version(name[0]) != Version1 {
		return 0, 0, false
	}
	raw, err := hex.DecodeString(name[1:])
	if err != nil {
		return 0, 0, false
	}
	for _, c := range name[1:] {
		// hex.DecodeString accepts uppercase; names never contain it.
		if c >= 'A' && c <= 'F' {
			return 0, 0, false
		}
	}
	return int64(binary.BigEndian.Uint64(raw[:8]) ^ (1 << 63)), Version1, true
}
