package model

// Section is a priced, rectangular block of seats.  Bounds are inclusive
// grid coordinates.
type Section struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	RowStart int     `json:"row_start"`
	RowEnd   int     `json:"row_end"`
	ColStart int     `json:"col_start"`
	ColEnd   int     `json:"col_end"`
}

// Contains reports whether (row, col) lies inside the section.
func (s Section) Contains(row, col int) bool {
	return row >= s.RowStart && row <= s.RowEnd && col >= s.ColStart && col <= s.ColEnd
}

// StageArea marks the grid cells occupied by the stage.  No seat exists
// inside it even when a section overlaps.
type StageArea struct {
	RowStart int    `json:"row_start"`
	RowEnd   int    `json:"row_end"`
	ColStart int    `json:"col_start"`
	ColEnd   int    `json:"col_end"`
	Label    string `json:"label"`
}

// Contains reports whether (row, col) lies on the stage.
func (a StageArea) Contains(row, col int) bool {
	return row >= a.RowStart && row <= a.RowEnd && col >= a.ColStart && col <= a.ColEnd
}

// Dimensions is the size of the venue grid.
type Dimensions struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// VenueLayout is the static venue geometry supplied by the layout file.
type VenueLayout struct {
	VenueName     string     `json:"venue_name"`
	VenueLocation string     `json:"venue_location"`
	Dimensions    Dimensions `json:"dimensions"`
	StageArea     StageArea  `json:"stage_area"`
	Sections      []Section  `json:"sections"`
}
