package sheets

import "time"

// ValueRange is a rectangular block of cell values addressed in A1 notation.
type ValueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// Document describes a spreadsheet visible to the current credential.
type Document struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// AppendResult reports where appended rows landed.
type AppendResult struct {
	UpdatedRange string `json:"updatedRange"`
	UpdatedRows  int    `json:"updatedRows"`
}

// UpdateResult reports how many cells an update touched.
type UpdateResult struct {
	UpdatedRange string `json:"updatedRange"`
	UpdatedCells int    `json:"updatedCells"`
}
