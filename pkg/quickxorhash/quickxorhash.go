// Package quickxorhash computes the QuickXorHash content digest that
// OneDrive and SharePoint report for every file.
//
// Each input byte is XORed into a 160-bit circular buffer at a position that
// advances 11 bits per byte. The total byte count is XORed into the last
// eight bytes of the digest.
//
// Reference: https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"
)

const (
	// Size is the length, in bytes, of a digest.
	Size = 20

	// BlockSize is the preferred input block size, in bytes.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
	lastCell    = 2
	lastBits    = widthInBits - 2*64
)

type digest struct {
	cells  [3]uint64
	pos    int // insertion point in bits, always < widthInBits
	length uint64
}

// New returns a hash.Hash computing the QuickXorHash.
func New() hash.Hash {
	return &digest{}
}

func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx, off := d.pos/64, d.pos%64

		width := 64
		if idx == lastCell {
			width = lastBits
		}

		d.cells[idx] ^= uint64(b) << off

		// Bits past the cell boundary wrap into the next cell.
		if off > width-8 {
			d.cells[(idx+1)%len(d.cells)] ^= uint64(b) >> (width - off)
		}

		d.pos = (d.pos + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

func (d *digest) Sum(b []byte) []byte {
	var out [Size]byte

	binary.LittleEndian.PutUint64(out[0:8], d.cells[0])
	binary.LittleEndian.PutUint64(out[8:16], d.cells[1])
	binary.LittleEndian.PutUint32(out[16:20], uint32(d.cells[lastCell])) //nolint:gosec // only the low 32 bits belong to the digest

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i, v := range n {
		out[Size-len(n)+i] ^= v
	}

	return append(b, out[:]...)
}

func (d *digest) Reset()         { *d = digest{} }
func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return BlockSize }

// Encode renders a digest the way the Graph API reports it: standard base64.
func Encode(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// Reader hashes everything r yields and returns the base64 digest.
func Reader(r io.Reader) (string, error) {
	h := New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return Encode(h.Sum(nil)), nil
}

// File hashes the file at path and returns the base64 digest.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("quickxorhash: opening %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("quickxorhash: reading %s: %w", path, err)
	}

	return sum, nil
}
