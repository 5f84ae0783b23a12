package mem_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/rxmine/pkg/mem"
	"github.com/calvinalkan/rxmine/pkg/mem/memtest"
	"github.com/google/go-cmp/cmp"
)

func Test_AllocWith_Uses_Huge_Pages_When_Available(t *testing.T) {
	t.Parallel()

	alloc := memtest.New()

	buf, err := mem.AllocWith(alloc, 5<<20, mem.Options{HugePages: true, Node: -1})
	if err != nil {
		t.Fatalf("AllocWith: %v", err)
	}

	defer func() { _ = buf.Close() }()

	if got, want := buf.Kind(), mem.PageHuge2M; got != want {
		t.Fatalf("kind=%s, want=%s", got, want)
	}

	if diff := cmp.Diff(mem.Pages{Allocated: 3, Attempted: 3}, buf.Pages()); diff != "" {
		t.Fatalf("pages mismatch (-want +got):\n%s", diff)
	}

	if got, want := len(buf.Bytes()), 5<<20; got != want {
		t.Fatalf("len(Bytes())=%d, want=%d", got, want)
	}
}

func Test_AllocWith_Falls_Back_To_Standard_Pages_When_Huge_Pages_Fail(t *testing.T) {
	t.Parallel()

	alloc := memtest.NoHugePages()

	buf, err := mem.AllocWith(alloc, 4<<20, mem.Options{HugePages: true, Node: -1})
	if err != nil {
		t.Fatalf("AllocWith: %v", err)
	}

	defer func() { _ = buf.Close() }()

	if got, want := buf.Kind(), mem.PageStandard; got != want {
		t.Fatalf("kind=%s, want=%s", got, want)
	}

	pages := buf.Pages()
	if pages.Allocated != 0 || pages.Attempted == 0 {
		t.Fatalf("pages=%s, want 0 allocated and >0 attempted", pages)
	}
}

func Test_AllocWith_Tries_1GB_Then_2MB_Pages_When_OneGBPages_Requested(t *testing.T) {
	t.Parallel()

	alloc := memtest.New().Fail(mem.PageHuge1G)

	buf, err := mem.AllocWith(alloc, 2<<20, mem.Options{OneGBPages: true, Node: -1})
	if err != nil {
		t.Fatalf("AllocWith: %v", err)
	}

	defer func() { _ = buf.Close() }()

	if got, want := buf.Kind(), mem.PageHuge2M; got != want {
		t.Fatalf("kind=%s, want=%s", got, want)
	}

	if !buf.Pages().Full() {
		t.Fatalf("pages=%s, want full", buf.Pages())
	}
}

func Test_AllocWith_Reports_Zero_Pages_When_Huge_Pages_Not_Requested(t *testing.T) {
	t.Parallel()

	buf, err := mem.AllocWith(memtest.New(), 1024, mem.Options{Node: -1})
	if err != nil {
		t.Fatalf("AllocWith: %v", err)
	}

	defer func() { _ = buf.Close() }()

	if got := buf.Pages(); got != (mem.Pages{}) {
		t.Fatalf("pages=%s, want zero value", got)
	}
}

func Test_AllocWith_Returns_ErrAllocation_When_All_Strategies_Fail(t *testing.T) {
	t.Parallel()

	alloc := memtest.New().Fail(mem.PageHuge2M, mem.PageStandard)

	_, err := mem.AllocWith(alloc, 1024, mem.Options{HugePages: true, Node: -1})
	if !errors.Is(err, mem.ErrAllocation) {
		t.Fatalf("err=%v, want ErrAllocation", err)
	}

	if !errors.Is(err, memtest.ErrInjected) {
		t.Fatalf("err=%v, want wrapped ErrInjected", err)
	}

	if got := alloc.Live(); got != 0 {
		t.Fatalf("live mappings=%d, want 0", got)
	}
}

func Test_AllocWith_Returns_ErrInvalidSize_When_Size_Not_Positive(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1} {
		_, err := mem.AllocWith(memtest.New(), size, mem.Options{Node: -1})
		if !errors.Is(err, mem.ErrInvalidSize) {
			t.Fatalf("size=%d: err=%v, want ErrInvalidSize", size, err)
		}
	}
}

func Test_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	alloc := memtest.New()

	buf, err := mem.AllocWith(alloc, 1024, mem.Options{Node: -1})
	if err != nil {
		t.Fatalf("AllocWith: %v", err)
	}

	for range 3 {
		if err := buf.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	if got := alloc.Live(); got != 0 {
		t.Fatalf("live mappings=%d, want 0", got)
	}

	if got := len(buf.Bytes()); got != 0 {
		t.Fatalf("len(Bytes()) after Close=%d, want 0", got)
	}
}

func Test_Pages_Add_And_Percent(t *testing.T) {
	t.Parallel()

	p := mem.Pages{Allocated: 1, Attempted: 2}.Add(mem.Pages{Allocated: 1, Attempted: 2})

	if diff := cmp.Diff(mem.Pages{Allocated: 2, Attempted: 4}, p); diff != "" {
		t.Fatalf("Add mismatch (-want +got):\n%s", diff)
	}

	if got, want := p.Percent(), 50.0; got != want {
		t.Fatalf("Percent()=%v, want=%v", got, want)
	}

	if got := (mem.Pages{}).Percent(); got != 0 {
		t.Fatalf("zero Percent()=%v, want 0", got)
	}
}
