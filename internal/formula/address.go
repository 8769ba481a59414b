package formula

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CellName converts zero-based column and row indices to an A1 name.
// Out-of-range input yields an empty string.
func CellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return ""
	}
	return name
}

// ParseCell converts an A1 name (absolute markers allowed) to zero-based
// column and row indices.
func ParseCell(a1 string) (col, row int, err error) {
	c, r, err := excelize.CellNameToCoordinates(strings.ReplaceAll(a1, "$", ""))
	if err != nil {
		return 0, 0, fmt.Errorf("parse cell %q: %w", a1, err)
	}
	return c - 1, r - 1, nil
}

// ColumnName converts a zero-based column index to its letters.
func ColumnName(col int) string {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return ""
	}
	return name
}

// NormalizeCell upper-cases an A1 name and strips absolute markers.
func NormalizeCell(a1 string) (string, error) {
	col, row, err := ParseCell(a1)
	if err != nil {
		return "", err
	}
	return CellName(col, row), nil
}

// SplitAddress splits a qualified address such as "Sheet!A1" or
// "'My Sheet'!$B$2" into its sheet name and normalized cell name.
func SplitAddress(addr string) (sheet, cell string, err error) {
	i := strings.LastIndexByte(addr, '!')
	if i <= 0 || i == len(addr)-1 {
		return "", "", fmt.Errorf("address %q: want Sheet!A1", addr)
	}
	sheet = addr[:i]
	if len(sheet) >= 2 && sheet[0] == '\'' && sheet[len(sheet)-1] == '\'' {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	if sheet == "" {
		return "", "", fmt.Errorf("address %q: empty sheet name", addr)
	}
	cell, err = NormalizeCell(addr[i+1:])
	if err != nil {
		return "", "", fmt.Errorf("address %q: %w", addr, err)
	}
	return sheet, cell, nil
}

// QuoteSheet quotes a sheet name for use in a formula when it contains
// anything other than letters, digits and underscores.
func QuoteSheet(name string) string {
	plain := name != "" && !(name[0] >= '0' && name[0] <= '9')
	for i := 0; plain && i < len(name); i++ {
		c := name[i]
		plain = c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// RangeRef renders "sheet!A2:A9" for a zero-based column over rows
// first..last (1-based, as displayed).
func RangeRef(sheet string, col, first, last int) string {
	letters := ColumnName(col)
	return fmt.Sprintf("%s!%s%d:%s%d", QuoteSheet(sheet), letters, first, letters, last)
}
