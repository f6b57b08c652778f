// Package venue loads the static venue geometry and derives the catalog of
// seats from it.  The registry is built once at startup and is read-only
// afterwards, so it is safe for concurrent use without locking.
package venue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// DefaultPrice is charged for a seat whose section carries no price.
const DefaultPrice = 100

// ErrInvalidLayout wraps every validation failure of a layout file.
var ErrInvalidLayout = errors.New("invalid venue layout")

// Registry is the immutable seat catalog.
type Registry struct {
	raw    []byte
	layout model.VenueLayout
	seats  []model.Seat
	index  map[string]int
}

// LoadFile reads and parses the layout file at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue layout: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw layout JSON.  The bytes are kept so the
// venue query can serve them verbatim.
func Parse(data []byte) (*Registry, error) {
	var layout model.VenueLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parse venue layout: %w", err)
	}
	if err := validate(layout); err != nil {
		return nil, err
	}

	r := &Registry{
		raw:    append([]byte(nil), data...),
		layout: layout,
		index:  make(map[string]int),
	}
	// Row-major walk gives the stable snapshot order.
	for row := 0; row < layout.Dimensions.Rows; row++ {
		for col := 0; col < layout.Dimensions.Cols; col++ {
			if layout.StageArea.Contains(row, col) {
				continue
			}
			sec, ok := sectionAt(layout.Sections, row, col)
			if !ok {
				continue
			}
			price := sec.Price
			if price <= 0 {
				price = DefaultPrice
			}
			seat := model.Seat{
				ID:        SeatID(row, col),
				Row:       row,
				Col:       col,
				SectionID: sec.ID,
				Price:     price,
			}
			r.index[seat.ID] = len(r.seats)
			r.seats = append(r.seats, seat)
		}
	}
	if len(r.seats) == 0 {
		return nil, fmt.Errorf("%w: layout defines no seats", ErrInvalidLayout)
	}
	return r, nil
}

func validate(l model.VenueLayout) error {
	if l.Dimensions.Rows <= 0 || l.Dimensions.Cols <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %dx%d", ErrInvalidLayout, l.Dimensions.Rows, l.Dimensions.Cols)
	}
	seen := make(map[string]bool, len(l.Sections))
	for _, s := range l.Sections {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: section without id", ErrInvalidLayout)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidLayout, s.ID)
		}
		seen[s.ID] = true
		if s.RowStart > s.RowEnd || s.ColStart > s.ColEnd {
			return fmt.Errorf("%w: section %q has inverted bounds", ErrInvalidLayout, s.ID)
		}
		if s.Price < 0 {
			return fmt.Errorf("%w: section %q has negative price", ErrInvalidLayout, s.ID)
		}
	}
	return nil
}

// sectionAt returns the first section containing the cell.
func sectionAt(sections []model.Section, row, col int) (model.Section, bool) {
	for _, s := range sections {
		if s.Contains(row, col) {
			return s, true
		}
	}
	return model.Section{}, false
}

// SeatID formats the identifier of the seat at (row, col).
func SeatID(row, col int) string {
	return strconv.Itoa(row) + "-" + strconv.Itoa(col)
}

// ParseSeatID is the inverse of SeatID.
func ParseSeatID(id string) (row, col int, err error) {
	rs, cs, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("seat id %q: missing separator", id)
	}
	if row, err = strconv.Atoi(rs); err != nil {
		return 0, 0, fmt.Errorf("seat id %q: bad row: %w", id, err)
	}
	if col, err = strconv.Atoi(cs); err != nil {
		return 0, 0, fmt.Errorf("seat id %q: bad col: %w", id, err)
	}
	return row, col, nil
}

// Exists reports whether id names a seat.
func (r *Registry) Exists(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Seat looks up a seat by id.
func (r *Registry) Seat(id string) (model.Seat, bool) {
	i, ok := r.index[id]
	if !ok {
		return model.Seat{}, false
	}
	return r.seats[i], true
}

// Seats returns all seats in row-major order.  The slice is a copy.
func (r *Registry) Seats() []model.Seat {
	return append([]model.Seat(nil), r.seats...)
}

// IDs returns all seat ids in row-major order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.seats))
	for i, s := range r.seats {
		ids[i] = s.ID
	}
	return ids
}

// Len is the number of seats.
func (r *Registry) Len() int { return len(r.seats) }

// PriceOf returns the price of seat id, or DefaultPrice when unknown.
func (r *Registry) PriceOf(id string) float64 {
	if s, ok := r.Seat(id); ok {
		return s.Price
	}
	return DefaultPrice
}

// Layout returns the parsed geometry.
func (r *Registry) Layout() model.VenueLayout { return r.layout }

// Raw returns a copy of the layout bytes exactly as loaded.
func (r *Registry) Raw() []byte { return bytes.Clone(r.raw) }
