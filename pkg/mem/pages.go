package mem

import "fmt"

// HugePageSize is the unit [Pages] are counted in.
const HugePageSize = 2 << 20

// OneGBPageSize is the size of a gigantic page.
const OneGBPageSize = 1 << 30

// PageKind identifies the page size backing a mapping.
type PageKind int

const (
	// PageStandard is the default page size of the platform.
	PageStandard PageKind = iota
	// PageHuge2M is a 2 MiB huge page mapping.
	PageHuge2M
	// PageHuge1G is a 1 GiB gigantic page mapping.
	PageHuge1G
)

// String returns a short human readable name.
func (k PageKind) String() string {
	switch k {
	case PageStandard:
		return "standard"
	case PageHuge2M:
		return "2MB"
	case PageHuge1G:
		return "1GB"
	default:
		return fmt.Sprintf("PageKind(%d)", int(k))
	}
}

// alignment is the mapping length granularity for the kind.
func (k PageKind) alignment() int {
	switch k {
	case PageHuge2M:
		return HugePageSize
	case PageHuge1G:
		return OneGBPageSize
	default:
		return 4096
	}
}

// Pages counts huge pages in 2 MiB units.
//
// Attempted is the number of pages a huge-page request needed; Allocated is
// how many of those ended up huge-page backed. A request that fell back to
// standard pages has Allocated == 0 and Attempted > 0. A request that never
// asked for huge pages is the zero value.
type Pages struct {
	Allocated uint32
	Attempted uint32
}

// Add returns the element-wise sum of p and o.
func (p Pages) Add(o Pages) Pages {
	return Pages{
		Allocated: p.Allocated + o.Allocated,
		Attempted: p.Attempted + o.Attempted,
	}
}

// Percent returns the share of attempted pages that were allocated.
func (p Pages) Percent() float64 {
	if p.Attempted == 0 {
		return 0
	}

	return float64(p.Allocated) / float64(p.Attempted) * 100
}

// Full reports whether every attempted page was allocated.
func (p Pages) Full() bool {
	return p.Attempted > 0 && p.Allocated == p.Attempted
}

// String renders "allocated/attempted".
func (p Pages) String() string {
	return fmt.Sprintf("%d/%d", p.Allocated, p.Attempted)
}

// pagesFor returns the number of 2 MiB pages needed to hold size bytes.
func pagesFor(size int) uint32 {
	return uint32((size + HugePageSize - 1) / HugePageSize)
}

func alignUp(size, to int) int {
	return (size + to - 1) / to * to
}
