package formula

import (
	"regexp"
	"strings"
)

// MaxRangeCells caps how many cells a single range reference expands to.
const MaxRangeCells = 1 << 16

var cellToken = regexp.MustCompile(`^\$?[A-Za-z]{1,3}\$?[1-9][0-9]*$`)

// Reference is one cell or range reference found in formula text.
// Start and End are normalized A1 names; for a single cell they are equal.
type Reference struct {
	Sheet   string
	Start   string
	End     string
	IsRange bool
}

// String renders the reference the way it would appear in a formula.
func (r Reference) String() string {
	var b strings.Builder
	if r.Sheet != "" {
		b.WriteString(QuoteSheet(r.Sheet))
		b.WriteByte('!')
	}
	b.WriteString(r.Start)
	if r.IsRange {
		b.WriteByte(':')
		b.WriteString(r.End)
	}
	return b.String()
}

// External reports whether the reference is qualified to a sheet other
// than current. Sheet names compare case-insensitively.
func (r Reference) External(current string) bool {
	return r.Sheet != "" && !strings.EqualFold(r.Sheet, current)
}

// Cells enumerates the referenced cells in row-major order, stopping at
// MaxRangeCells.
func (r Reference) Cells() []string {
	if !r.IsRange {
		return []string{r.Start}
	}
	c1, r1, err := ParseCell(r.Start)
	if err != nil {
		return nil
	}
	c2, r2, err := ParseCell(r.End)
	if err != nil {
		return nil
	}
	var out []string
	for row := r1; row <= r2; row++ {
		for col := c1; col <= c2; col++ {
			if len(out) == MaxRangeCells {
				return out
			}
			out = append(out, CellName(col, row))
		}
	}
	return out
}

// Extract scans formula text (with or without the leading '=') for cell
// and range references. String literals are skipped and function names
// such as LOG10( are not mistaken for cells. Whole-column or whole-row
// ranges are ignored.
func Extract(text string) []Reference {
	s := strings.TrimPrefix(strings.TrimSpace(text), "=")
	var refs []Reference
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '"':
			i = skipString(s, i)
		case c == '\'':
			name, next, ok := readQuoted(s, i)
			i = next
			if !ok || i >= len(s) || s[i] != '!' {
				continue
			}
			i++
			if ref, end, ok := readCellOrRange(s, i); ok {
				ref.Sheet = name
				refs = append(refs, ref)
				i = end
			}
		case isIdentRune(c):
			start := i
			for i < len(s) && isIdentRune(s[i]) {
				i++
			}
			if i < len(s) && s[i] == '!' {
				i++
				if ref, end, ok := readCellOrRange(s, i); ok {
					ref.Sheet = s[start : i-1]
					refs = append(refs, ref)
					i = end
				}
				continue
			}
			if i < len(s) && s[i] == '(' {
				continue
			}
			if ref, end, ok := readCellOrRange(s, start); ok {
				refs = append(refs, ref)
				i = end
			}
		default:
			i++
		}
	}
	return refs
}

// readCellOrRange reads A1 or A1:B2 starting at i.
func readCellOrRange(s string, i int) (Reference, int, bool) {
	first, end := readToken(s, i)
	start, ok := parseCellToken(first)
	if !ok {
		return Reference{}, end, false
	}
	ref := Reference{Start: start, End: start}
	if end < len(s) && s[end] == ':' {
		second, end2 := readToken(s, end+1)
		if last, ok := parseCellToken(second); ok {
			ref.Start, ref.End = orderCorners(start, last)
			ref.IsRange = true
			end = end2
		}
	}
	return ref, end, true
}

func readToken(s string, i int) (string, int) {
	j := i
	for j < len(s) && isIdentRune(s[j]) {
		j++
	}
	return s[i:j], j
}

func parseCellToken(tok string) (string, bool) {
	if !cellToken.MatchString(tok) {
		return "", false
	}
	name, err := NormalizeCell(tok)
	if err != nil {
		return "", false
	}
	return name, true
}

// orderCorners returns the top-left and bottom-right corners of a range.
func orderCorners(a, b string) (string, string) {
	c1, r1, _ := ParseCell(a)
	c2, r2, _ := ParseCell(b)
	return CellName(min(c1, c2), min(r1, r2)), CellName(max(c1, c2), max(r1, r2))
}

func skipString(s string, i int) int {
	j := i + 1
	for j < len(s) {
		if s[j] == '"' {
			if j+1 < len(s) && s[j+1] == '"' {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s)
}

func readQuoted(s string, i int) (string, int, bool) {
	var b strings.Builder
	j := i + 1
	for j < len(s) {
		if s[j] == '\'' {
			if j+1 < len(s) && s[j+1] == '\'' {
				b.WriteByte('\'')
				j += 2
				continue
			}
			return b.String(), j + 1, true
		}
		b.WriteByte(s[j])
		j++
	}
	return "", len(s), false
}

func isIdentRune(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		(c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
