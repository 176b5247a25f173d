package table

import (
	"fmt"
	"strings"
)

// Column is a sortable table column.
type Column int

const (
	ColumnNone Column = iota
	ColumnCity
	ColumnTemperature
	ColumnHumidity
)

func (c Column) String() string {
	switch c {
	case ColumnCity:
		return "city"
	case ColumnTemperature:
		return "temp"
	case ColumnHumidity:
		return "humidity"
	default:
		return "none"
	}
}

// ParseColumn accepts "city", "temp"/"temperature", "humidity" or ""/"none".
func ParseColumn(s string) (Column, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ColumnNone, nil
	case "city":
		return ColumnCity, nil
	case "temp", "temperature":
		return ColumnTemperature, nil
	case "humidity":
		return ColumnHumidity, nil
	}
	return ColumnNone, fmt.Errorf("unknown sort column %q", s)
}

// Direction is the sort order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection accepts "asc" or "desc"; "" means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("unknown sort direction %q", s)
}

// SortSpec is the table's sort state. The zero value is unsorted.
type SortSpec struct {
	Column    Column
	Direction Direction
}

// Toggle returns the sort after a header click on col: the same column flips
// direction, a different column is selected ascending.
func (s SortSpec) Toggle(col Column) SortSpec {
	if s.Column == col {
		if s.Direction == Ascending {
			return SortSpec{Column: col, Direction: Descending}
		}
		return SortSpec{Column: col, Direction: Ascending}
	}
	return SortSpec{Column: col, Direction: Ascending}
}

// MarshalText lets SortSpec appear as "temp:desc" in JSON state.
func (s SortSpec) MarshalText() ([]byte, error) {
	if s.Column == ColumnNone {
		return []byte("none"), nil
	}
	return []byte(s.Column.String() + ":" + s.Direction.String()), nil
}

// UnmarshalText parses the form written by MarshalText.
func (s *SortSpec) UnmarshalText(b []byte) error {
	colText, dirText, _ := strings.Cut(string(b), ":")
	col, err := ParseColumn(colText)
	if err != nil {
		return err
	}
	dir, err := ParseDirection(dirText)
	if err != nil {
		return err
	}
	*s = SortSpec{Column: col, Direction: dir}
	return nil
}
