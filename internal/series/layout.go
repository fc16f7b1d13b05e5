package series

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout describes where samples live in a force data file. Column indexes
// are zero-based positions within a row; rows with fewer than MinFields
// fields are skipped entirely.
type Layout struct {
	TimeColumn   int `yaml:"time_column"`
	Force1Column int `yaml:"force1_column"`
	Force2Column int `yaml:"force2_column"`
	MinFields    int `yaml:"min_fields"`
	HeaderLines  int `yaml:"header_lines"`
}

// DefaultLayout returns the built-in force plate layout:
// Time,Fx1,Fy1,Fz1,Fx2,Fy2,Fz2 with the vertical components at columns 3
// and 6. Rows carrying only the first plate still parse; the second
// channel coerces to 0.
func DefaultLayout() Layout {
	return Layout{
		TimeColumn:   0,
		Force1Column: 3,
		Force2Column: 6,
		MinFields:    4,
		HeaderLines:  1,
	}
}

// ExportLayout matches the three-column Time,Force1,Force2 form produced
// by Series.EncodeCSV, so exported files can be read back in.
func ExportLayout() Layout {
	return Layout{
		TimeColumn:   0,
		Force1Column: 1,
		Force2Column: 2,
		MinFields:    1,
		HeaderLines:  1,
	}
}

// LoadLayout reads a YAML layout file. Omitted keys keep their defaults.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()

	data, err := os.ReadFile(path)
	if err != nil {
		return layout, fmt.Errorf("read layout: %w", err)
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return layout, fmt.Errorf("parse layout: %w", err)
	}
	if err := layout.validate(); err != nil {
		return layout, fmt.Errorf("invalid layout %s: %w", path, err)
	}
	return layout, nil
}

func (l Layout) validate() error {
	if l.TimeColumn < 0 || l.Force1Column < 0 || l.Force2Column < 0 {
		return fmt.Errorf("column indexes must be non-negative")
	}
	if l.MinFields < 1 {
		return fmt.Errorf("min_fields must be at least 1")
	}
	if l.TimeColumn >= l.MinFields {
		return fmt.Errorf("time_column %d not covered by min_fields %d", l.TimeColumn, l.MinFields)
	}
	if l.HeaderLines < 0 {
		return fmt.Errorf("header_lines must be non-negative")
	}
	return nil
}
