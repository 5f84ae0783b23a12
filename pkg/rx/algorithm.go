package rx

import (
	"fmt"
	"strings"
)

// Family groups algorithms that share a hashing engine.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyCryptoNight
	FamilyArgon2
	FamilyRandomX
)

func (f Family) String() string {
	switch f {
	case FamilyCryptoNight:
		return "cn"
	case FamilyArgon2:
		return "argon2"
	case FamilyRandomX:
		return "rx"
	default:
		return "unknown"
	}
}

// DatasetItemSize is the size of one dataset item in bytes.
const DatasetItemSize = 64

const (
	rxCacheSize       = 256 << 20
	rxDatasetBaseSize = 2 << 30
	rxDatasetExtra    = 33554368
)

// Algorithm describes a proof-of-work algorithm and, for the RandomX family,
// the fixed sizes of its cache and dataset.
//
// Tests may construct their own Algorithm values with small sizes.
// DatasetSize must be a multiple of [DatasetItemSize].
type Algorithm struct {
	Name        string
	Family      Family
	CacheSize   int
	DatasetSize int

	// Salt personalizes the key expansion per algorithm variant.
	Salt string
}

// Registered algorithms.
var (
	RX0 = Algorithm{
		Name: "rx/0", Family: FamilyRandomX,
		CacheSize: rxCacheSize, DatasetSize: rxDatasetBaseSize + rxDatasetExtra,
		Salt: "RandomX\x03",
	}
	RXWow = Algorithm{
		Name: "rx/wow", Family: FamilyRandomX,
		CacheSize: rxCacheSize, DatasetSize: rxDatasetBaseSize + rxDatasetExtra,
		Salt: "RandomWOW\x01",
	}
	RXArq = Algorithm{
		Name: "rx/arq", Family: FamilyRandomX,
		CacheSize: rxCacheSize, DatasetSize: rxDatasetBaseSize + rxDatasetExtra,
		Salt: "RandomARQ\x01",
	}
	RXSfx = Algorithm{
		Name: "rx/sfx", Family: FamilyRandomX,
		CacheSize: rxCacheSize, DatasetSize: rxDatasetBaseSize + rxDatasetExtra,
		Salt: "RandomSFX\x01",
	}
	CNR          = Algorithm{Name: "cn/r", Family: FamilyCryptoNight}
	Argon2Chukwa = Algorithm{Name: "argon2/chukwa", Family: FamilyArgon2}
)

var registry = []Algorithm{RX0, RXWow, RXArq, RXSfx, CNR, Argon2Chukwa}

// Algorithms returns every registered algorithm.
func Algorithms() []Algorithm {
	out := make([]Algorithm, len(registry))
	copy(out, registry)

	return out
}

// ParseAlgorithm looks up a registered algorithm by name (case-insensitive).
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, a := range registry {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}

	return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// IsRandomX reports whether the algorithm needs a cache and dataset.
func (a Algorithm) IsRandomX() bool {
	return a.Family == FamilyRandomX
}

// Items returns the number of dataset items.
func (a Algorithm) Items() uint64 {
	return uint64(a.DatasetSize / DatasetItemSize)
}

func (a Algorithm) String() string {
	if a.Name == "" {
		return "invalid"
	}

	return a.Name
}
