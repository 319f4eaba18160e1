package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
)

const (
	// Alphabet is the geohash base32 alphabet. Cell keys sort in this order.
	Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

	// DefaultPrecision is the storage precision in characters.
	DefaultPrecision = 10

	// MaxPrecision is the longest cell key the encoder produces.
	MaxPrecision = 12

	bitsPerChar = 5

	// rangeEndSentinel sorts after every alphabet symbol.
	rangeEndSentinel = "~"
)

// Range is a half-open lexicographic interval [Start, End) of cell keys.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether key falls inside the range.
func (r Range) Contains(key string) bool {
	return key >= r.Start && key < r.End
}

func (r Range) String() string {
	return r.Start + ".." + r.End
}

// Index computes cell keys and query ranges at a fixed storage precision.
type Index struct {
	precision int
}

// NewIndex returns an Index storing keys of the given length.
func NewIndex(precision int) (*Index, error) {
	if precision < 1 || precision > MaxPrecision {
		return nil, fmt.Errorf("geo: precision must be between 1 and %d, got %d", MaxPrecision, precision)
	}
	return &Index{precision: precision}, nil
}

// Precision returns the storage precision in characters.
func (ix *Index) Precision() int {
	return ix.precision
}

// CellKey returns the storage cell key for p.
func (ix *Index) CellKey(p Point) string {
	return encode(p, ix.precision)
}

// encode clamps the closed upper bounds, which the integer encoder cannot represent.
func encode(p Point, chars int) string {
	lat := math.Min(p.Lat, math.Nextafter(90, 0))
	lng := math.Min(p.Lng, math.Nextafter(180, 0))
	return geohash.EncodeWithPrecision(lat, lng, uint(chars))
}

// hashRange converts a geohash to the key range covering its first bits bits.
func hashRange(hash string, bits int) Range {
	precision := (bits + bitsPerChar - 1) / bitsPerChar
	if len(hash) < precision {
		return Range{Start: hash, End: hash + rangeEndSentinel}
	}
	hash = hash[:precision]
	base := hash[:len(hash)-1]
	last := strings.IndexByte(Alphabet, hash[len(hash)-1])
	unused := bitsPerChar - (bits - len(base)*bitsPerChar)

	start := (last >> unused) << unused
	end := start + (1 << unused)
	if end > len(Alphabet)-1 {
		return Range{Start: base + string(Alphabet[start]), End: base + rangeEndSentinel}
	}
	return Range{Start: base + string(Alphabet[start]), End: base + string(Alphabet[end])}
}
