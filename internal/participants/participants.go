// Package participants reads, writes and samples the host ids taking part
// in one emulation run.
package participants

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/iti/rngstream"

	"wanemu/internal/config"
)

// ErrNoParticipants is returned when the participant file lists no host.
var ErrNoParticipants = errors.New("no nodes found in participants file")

// Rand is the random source used for sampling. *rngstream.RngStream
// satisfies it; RandInt bounds are inclusive.
type Rand interface {
	RandInt(lo, hi int) int
}

// NewRand returns a named random stream.
func NewRand(seed string) Rand {
	return rngstream.New(seed)
}

// Read parses one integer host id per line, skipping blank lines. A missing
// or empty file is a configuration error.
func Read(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &config.ConfigurationError{Path: path, Err: fmt.Errorf("%s not found: %w", path, err)}
		}
		return nil, &config.ConfigurationError{Path: path, Err: err}
	}
	defer f.Close()
	ids, err := Parse(f)
	if err != nil {
		return nil, &config.ConfigurationError{Path: path, Err: err}
	}
	return ids, nil
}

// Parse reads participant ids from r. Duplicates and negative ids are
// rejected because host ids must be unique per run.
func Parse(r io.Reader) ([]int, error) {
	var ids []int
	seen := make(map[int]struct{})
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		id, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if id < 0 {
			return nil, fmt.Errorf("line %d: negative host id %d", line, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate host id %d", line, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoParticipants
	}
	return ids, nil
}

// Write stores ids one per line.
func Write(path string, ids []int) error {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(strconv.Itoa(id))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// SampleSize returns max(min, floor(total*percentage)) capped at total.
func SampleSize(total int, percentage float64, min int) int {
	n := int(math.Floor(float64(total) * percentage))
	if n < min {
		n = min
	}
	if n > total {
		n = total
	}
	return n
}

// Select draws a sorted random sample of all using SampleSize.
func Select(all []int, percentage float64, min int, rng Rand) []int {
	pool := append([]int(nil), all...)
	n := SampleSize(len(pool), percentage, min)
	for i := 0; i < n; i++ {
		j := rng.RandInt(i, len(pool)-1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := pool[:n]
	sort.Ints(out)
	return out
}

// Shuffle returns a randomly permuted copy of ids.
func Shuffle(ids []int, rng Rand) []int {
	out := append([]int(nil), ids...)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.RandInt(0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Min returns the smallest id. ids must not be empty.
func Min(ids []int) int {
	m := ids[0]
	for _, id := range ids[1:] {
		if id < m {
			m = id
		}
	}
	return m
}

// Max returns the largest id. ids must not be empty.
func Max(ids []int) int {
	m := ids[0]
	for _, id := range ids[1:] {
		if id > m {
			m = id
		}
	}
	return m
}
