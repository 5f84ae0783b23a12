package rx_test

import (
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/calvinalkan/rxmine/pkg/rx"
	"github.com/google/go-cmp/cmp"
)

func Test_ParseSeed_Returns_Error_When_Length_Or_Encoding_Is_Wrong(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"short":   "abcd",
		"not hex": strings.Repeat("zz", rx.SeedSize),
		"long":    strings.Repeat("00", rx.SeedSize+1),
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := rx.ParseSeed(rx.RX0, in, 0)
			if !errors.Is(err, rx.ErrInvalidSeed) {
				t.Fatalf("err=%v, want=%v", err, rx.ErrInvalidSeed)
			}
		})
	}
}

func Test_Seed_Equal_Ignores_Epoch_But_Not_Algorithm(t *testing.T) {
	t.Parallel()

	hexSeed := strings.Repeat("ab", rx.SeedSize)

	a, err := rx.ParseSeed(rx.RX0, hexSeed, 1)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}

	b, _ := rx.ParseSeed(rx.RX0, hexSeed, 2)
	c, _ := rx.ParseSeed(rx.RXWow, hexSeed, 1)

	if !a.Equal(b) {
		t.Fatalf("seeds with different epochs not equal: %s vs %s", a, b)
	}

	if a.Equal(c) {
		t.Fatalf("seeds of different algorithms equal: %s vs %s", a, c)
	}

	if got, want := a.String(), "rx/0:abababababababab"; got != want {
		t.Fatalf("String()=%q, want=%q", got, want)
	}

	if !(rx.Seed{}).IsZero() || a.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func Test_SeedHeight_Follows_Epoch_Schedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		height uint64
		want   uint64
	}{
		{0, 0},
		{2112, 0},
		{2113, 2048},
		{4160, 2048},
		{4161, 4096},
		{1_000_000, 999_424},
	}

	for _, tc := range cases {
		if got := rx.SeedHeight(tc.height); got != tc.want {
			t.Errorf("SeedHeight(%d)=%d, want=%d", tc.height, got, tc.want)
		}
	}

	cur, next := rx.SeedHeights(4100)
	if cur != 2048 || next != 4096 {
		t.Fatalf("SeedHeights(4100)=(%d,%d), want=(2048,4096)", cur, next)
	}
}

func Test_ParseAlgorithm_Finds_Registered_Names_Case_Insensitively(t *testing.T) {
	t.Parallel()

	alg, err := rx.ParseAlgorithm("RX/WOW")
	if err != nil {
		t.Fatalf("ParseAlgorithm: %v", err)
	}

	if alg.Name != rx.RXWow.Name || !alg.IsRandomX() {
		t.Fatalf("got=%+v, want=%+v", alg, rx.RXWow)
	}

	if alg.DatasetSize%rx.DatasetItemSize != 0 {
		t.Fatalf("dataset size %d not a multiple of item size", alg.DatasetSize)
	}

	_, err = rx.ParseAlgorithm("sha256")
	if !errors.Is(err, rx.ErrUnknownAlgorithm) {
		t.Fatalf("err=%v, want=%v", err, rx.ErrUnknownAlgorithm)
	}

	cn, _ := rx.ParseAlgorithm("cn/r")
	if cn.IsRandomX() {
		t.Fatal("cn/r reported as RandomX")
	}
}

func Test_ParseMode_Accepts_Known_Modes(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]rx.Mode{"": rx.ModeAuto, "auto": rx.ModeAuto, "Fast": rx.ModeFast, "light": rx.ModeLight} {
		got, err := rx.ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q)=(%s, %v), want=%s", in, got, err, want)
		}
	}

	_, err := rx.ParseMode("turbo")
	if !errors.Is(err, rx.ErrInvalidMode) {
		t.Fatalf("err=%v, want=%v", err, rx.ErrInvalidMode)
	}
}

func Test_Partition_Covers_All_Items_Without_Overlap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		items   uint64
		threads int
		want    [][2]uint64
	}{
		{items: 10, threads: 3, want: [][2]uint64{{0, 4}, {4, 3}, {7, 3}}},
		{items: 2, threads: 8, want: [][2]uint64{{0, 1}, {1, 1}}},
		{items: 5, threads: 0, want: [][2]uint64{{0, 5}}},
		{items: 0, threads: 4, want: [][2]uint64{}},
	}

	for _, tc := range cases {
		got := rx.Partition(tc.items, tc.threads)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Partition(%d, %d) mismatch (-want +got):\n%s", tc.items, tc.threads, diff)
		}
	}
}

func Test_NodeThreads_Splits_Automatic_Count_When_Nodes_Fill_Together(t *testing.T) {
	t.Parallel()

	split := max(runtime.NumCPU()/2, 1)

	cases := []struct {
		threads, nodes, want int
	}{
		{threads: 0, nodes: 2, want: split},
		{threads: -1, nodes: 2, want: split},
		{threads: 0, nodes: 1, want: 0},
		{threads: 3, nodes: 2, want: 3},
		{threads: 0, nodes: 4 * runtime.NumCPU(), want: 1},
	}

	for _, tc := range cases {
		if got := rx.NodeThreads(tc.threads, tc.nodes); got != tc.want {
			t.Errorf("NodeThreads(%d, %d) got=%d, want=%d", tc.threads, tc.nodes, got, tc.want)
		}
	}
}

func Test_DefaultExpander_Is_Deterministic_And_Seed_Dependent(t *testing.T) {
	t.Parallel()

	exp := rx.DefaultExpander()
	s1 := seedFor(t, testAlg, 1)
	s2 := seedFor(t, testAlg, 2)

	a := make([]byte, testAlg.CacheSize)
	b := make([]byte, testAlg.CacheSize)
	c := make([]byte, testAlg.CacheSize)

	for _, step := range []struct {
		seed rx.Seed
		dst  []byte
	}{{s1, a}, {s1, b}, {s2, c}} {
		err := exp.ExpandCache(step.seed, step.dst)
		if err != nil {
			t.Fatalf("ExpandCache: %v", err)
		}
	}

	if !cmp.Equal(a, b) {
		t.Fatal("same seed expanded to different caches")
	}

	if cmp.Equal(a, c) {
		t.Fatal("different seeds expanded to the same cache")
	}

	err := exp.ExpandCache(s1, make([]byte, 8))
	if err == nil {
		t.Fatal("ExpandCache into 8 bytes: want error")
	}
}
