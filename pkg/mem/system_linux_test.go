//go:build linux

package mem_test

import (
	"testing"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

func Test_Alloc_Maps_Standard_Pages_And_Seals_When_Using_System(t *testing.T) {
	t.Parallel()

	buf, err := mem.Alloc(1<<16, mem.Options{Node: -1})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	defer func() { _ = buf.Close() }()

	data := buf.Bytes()
	for i := range data {
		data[i] = byte(i)
	}

	if err := buf.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if got, want := buf.Bytes()[257], byte(1); got != want {
		t.Fatalf("Bytes()[257]=%d, want=%d", got, want)
	}
}

func Test_Alloc_Never_Fails_When_Huge_Pages_Are_Unavailable(t *testing.T) {
	t.Parallel()

	// Hosts without reserved huge pages must still get a usable buffer.
	buf, err := mem.Alloc(mem.HugePageSize, mem.Options{HugePages: true, Node: 0})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	defer func() { _ = buf.Close() }()

	if got, want := buf.Pages().Attempted, uint32(1); got != want {
		t.Fatalf("attempted=%d, want=%d", got, want)
	}
}
