package participants

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"wanemu/internal/config"
)

// seqRand always picks the lowest allowed index.
type seqRand struct{}

func (seqRand) RandInt(lo, hi int) int { return lo }

// highRand always picks the highest allowed index.
type highRand struct{}

func (highRand) RandInt(lo, hi int) int { return hi }

func TestParse(t *testing.T) {
	ids, err := Parse(strings.NewReader("3\n\n 17 \n5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{3, 17, 5}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":     "\n\n",
		"not int":   "1\nabc\n",
		"negative":  "-4\n",
		"duplicate": "2\n2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "participants.txt")
	_, err := Read(path)
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "participants.txt not found") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "participants.txt")
	if err := Write(path, []int{1, 9, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ids, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{1, 9, 4}) {
		t.Fatalf("ids = %v", ids)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := Read(path); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
}

func TestSampleSize(t *testing.T) {
	cases := []struct {
		total, min int
		pct        float64
		want       int
	}{
		{100, 2, 0.1, 10},
		{10, 2, 0.1, 2},
		{1, 2, 0.1, 1},
		{50, 2, 1, 50},
		{0, 2, 0.1, 0},
	}
	for _, tc := range cases {
		if got := SampleSize(tc.total, tc.pct, tc.min); got != tc.want {
			t.Errorf("SampleSize(%d,%v,%d) = %d want %d", tc.total, tc.pct, tc.min, got, tc.want)
		}
	}
}

func TestSelect(t *testing.T) {
	all := []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	got := Select(all, 0.3, 2, seqRand{})
	if !reflect.DeepEqual(got, []int{10, 20, 30}) {
		t.Fatalf("Select = %v", got)
	}
	got = Select(all, 0.2, 2, highRand{})
	if !reflect.DeepEqual(got, []int{10, 100}) {
		t.Fatalf("Select = %v", got)
	}
	if all[0] != 10 || all[9] != 100 {
		t.Fatalf("input mutated: %v", all)
	}

	rs := Select(all, 0.5, 2, NewRand("test-select"))
	if len(rs) != 5 {
		t.Fatalf("len = %d", len(rs))
	}
	if !sort.IntsAreSorted(rs) {
		t.Fatalf("sample not sorted: %v", rs)
	}
	seen := map[int]bool{}
	for _, id := range rs {
		if seen[id] {
			t.Fatalf("duplicate %d in %v", id, rs)
		}
		seen[id] = true
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	ids := []int{5, 1, 9, 3}
	out := Shuffle(ids, seqRand{})
	if !reflect.DeepEqual(ids, []int{5, 1, 9, 3}) {
		t.Fatalf("input mutated")
	}
	sorted := append([]int(nil), out...)
	sort.Ints(sorted)
	if !reflect.DeepEqual(sorted, []int{1, 3, 5, 9}) {
		t.Fatalf("not a permutation: %v", out)
	}
}

func TestMinMax(t *testing.T) {
	ids := []int{7, 2, 11, 4}
	if Min(ids) != 2 || Max(ids) != 11 {
		t.Fatalf("Min/Max = %d/%d", Min(ids), Max(ids))
	}
}
