package seating

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

type SeatClass string

const (
	// ClassAccessible marks outer columns (window/aisle) that are easier to reach.
	ClassAccessible SeatClass = "accessible"
	ClassInterior   SeatClass = "interior"
)

type Seat struct {
	ID    string    `yaml:"id"`
	Row   int       `yaml:"row"`
	Group int       `yaml:"group"`
	Class SeatClass `yaml:"class"`
}

// LayoutConfig is the YAML shape of a seat layout. Either Seats lists every
// seat explicitly, or Rows x Columns generates them as "<row><column>".
type LayoutConfig struct {
	Rows              int      `yaml:"rows"`
	Columns           []string `yaml:"columns"`
	AccessibleColumns []string `yaml:"accessible_columns"`
	RowGroupSize      int      `yaml:"row_group_size"`
	PremiumGroups     int      `yaml:"premium_groups"`
	Seats             []Seat   `yaml:"seats"`
}

// Layout is the static, ordered seat map of one vehicle.
type Layout struct {
	seats         []Seat
	index         map[string]int
	groups        []int
	premiumGroups int
}

// DefaultLayoutConfig describes a 32-seat coach: rows 1-8, columns A-D,
// A and D outer, rows grouped in pairs.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Rows:              8,
		Columns:           []string{"A", "B", "C", "D"},
		AccessibleColumns: []string{"A", "D"},
		RowGroupSize:      2,
		PremiumGroups:     2,
	}
}

func DefaultLayout() *Layout {
	l, err := NewLayout(DefaultLayoutConfig())
	if err != nil {
		panic(err)
	}
	return l
}

func NewLayout(cfg LayoutConfig) (*Layout, error) {
	seats := cfg.Seats
	if len(seats) == 0 {
		seats = generateSeats(cfg)
	}
	if len(seats) == 0 {
		return nil, errors.New("seat layout has no seats")
	}

	premium := cfg.PremiumGroups
	if premium <= 0 {
		premium = 1
	}

	l := &Layout{
		seats:         make([]Seat, 0, len(seats)),
		index:         make(map[string]int, len(seats)),
		premiumGroups: premium,
	}
	for _, s := range seats {
		if s.ID == "" {
			return nil, errors.New("seat layout contains a seat without id")
		}
		if _, dup := l.index[s.ID]; dup {
			return nil, fmt.Errorf("seat layout contains duplicate seat %s", s.ID)
		}
		if s.Class == "" {
			s.Class = ClassInterior
		}
		if s.Class != ClassAccessible && s.Class != ClassInterior {
			return nil, fmt.Errorf("seat %s has unknown class %q", s.ID, s.Class)
		}
		l.index[s.ID] = len(l.seats)
		l.seats = append(l.seats, s)
	}

	seen := map[int]bool{}
	for _, s := range l.seats {
		if !seen[s.Group] {
			seen[s.Group] = true
			l.groups = append(l.groups, s.Group)
		}
	}
	sort.Ints(l.groups)
	return l, nil
}

func generateSeats(cfg LayoutConfig) []Seat {
	groupSize := cfg.RowGroupSize
	if groupSize <= 0 {
		groupSize = 1
	}
	accessible := make(map[string]bool, len(cfg.AccessibleColumns))
	for _, c := range cfg.AccessibleColumns {
		accessible[c] = true
	}

	seats := make([]Seat, 0, cfg.Rows*len(cfg.Columns))
	for row := 1; row <= cfg.Rows; row++ {
		for _, col := range cfg.Columns {
			class := ClassInterior
			if accessible[col] {
				class = ClassAccessible
			}
			seats = append(seats, Seat{
				ID:    strconv.Itoa(row) + col,
				Row:   row,
				Group: (row - 1) / groupSize,
				Class: class,
			})
		}
	}
	return seats
}

// ParseLayout decodes a YAML layout.
func ParseLayout(data []byte) (*Layout, error) {
	var cfg LayoutConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode seat layout: %w", err)
	}
	return NewLayout(cfg)
}

// LoadLayout reads a YAML layout from path.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seat layout: %w", err)
	}
	return ParseLayout(data)
}

// Seats returns the seats in layout order.
func (l *Layout) Seats() []Seat {
	out := make([]Seat, len(l.seats))
	copy(out, l.seats)
	return out
}

func (l *Layout) Seat(id string) (Seat, bool) {
	i, ok := l.index[id]
	if !ok {
		return Seat{}, false
	}
	return l.seats[i], true
}

// PremiumGroups returns the lowest-numbered row groups preferred for VIPs.
func (l *Layout) PremiumGroups() []int {
	n := l.premiumGroups
	if n > len(l.groups) {
		n = len(l.groups)
	}
	return l.groups[:n]
}

func (l *Layout) Len() int {
	return len(l.seats)
}
