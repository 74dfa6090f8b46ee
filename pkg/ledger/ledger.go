// Package ledger keeps the cumulative number of images generated per mockup.
//
// The ledger is a plain text file with one "name: count" line per mockup,
// sorted by name.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultFile is the ledger file name used when none is configured
const DefaultFile = "TotalImage.txt"

// Ledger maps mockup names to cumulative generated-image counts
type Ledger map[string]int

// New returns an empty ledger
func New() Ledger {
	return make(Ledger)
}

// Load reads a ledger file. A missing file is an empty ledger.
func Load(path string) (Ledger, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	return l, nil
}

// Parse reads the ledger text format. Blank lines are ignored; any other
// line that is not "name: count" with a non-negative count is an error.
func Parse(r io.Reader) (Ledger, error) {
	l := New()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		i := strings.Index(line, ":")
		if i <= 0 {
			return nil, fmt.Errorf("line %d: missing \"name: count\" separator", lineNo)
		}
		name := strings.TrimSpace(line[:i])
		count, err := strconv.Atoi(strings.TrimSpace(line[i+1:]))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("line %d: invalid count %q", lineNo, strings.TrimSpace(line[i+1:]))
		}
		if name == "" {
			return nil, fmt.Errorf("line %d: empty name", lineNo)
		}
		l[name] += count
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return l, nil
}

// Clone returns an independent copy
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Add increases the count for name
func (l Ledger) Add(name string, n int) {
	l[name] += n
}

// Merge returns a copy of l with counts added
func (l Ledger) Merge(counts map[string]int) Ledger {
	out := l.Clone()
	for k, v := range counts {
		out.Add(k, v)
	}
	return out
}

// Total is the sum of all counts
func (l Ledger) Total() int {
	total := 0
	for _, v := range l {
		total += v
	}
	return total
}

// Names returns the mockup names in sorted order
func (l Ledger) Names() []string {
	names := make([]string, 0, len(l))
	for k := range l {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// WriteTo writes the ledger text format
func (l Ledger) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, name := range l.Names() {
		fmt.Fprintf(&buf, "%s: %d\n", name, l[name])
	}
	return buf.WriteTo(w)
}

// Save writes the ledger atomically through a temporary file in the same
// directory.
func (l Ledger) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := l.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
