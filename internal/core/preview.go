package core

// BuildPreview aggregates classified rows into a preview.
// Rows are kept as given; meta supplies the source row count.
func BuildPreview[T any](entities []ImportEntity[T], meta SheetMetadata) *ImportPreview[T] {
	p := &ImportPreview[T]{
		Rows:            entities,
		IsLargeDataset:  meta.IsLargeDataset,
		SourceTotalRows: meta.TotalRows,
	}
	p.Recount()
	return p
}

// Recount recomputes the aggregate counts from the rows.
func (p *ImportPreview[T]) Recount() {
	p.TotalRows = len(p.Rows)
	p.ValidRows, p.InvalidRows, p.DuplicateRows, p.EmptyRows, p.SelectedRows = 0, 0, 0, 0, 0

	for _, row := range p.Rows {
		switch row.Status {
		case StatusValid:
			p.ValidRows++
		case StatusInvalid:
			p.InvalidRows++
		case StatusDuplicate:
			p.DuplicateRows++
		case StatusEmpty:
			p.EmptyRows++
		}
		if row.Selected {
			p.SelectedRows++
		}
	}
}

// PreviewCounts are the aggregate counts of a preview without its rows.
type PreviewCounts struct {
	TotalRows     int `json:"totalRows"`
	ValidRows     int `json:"validRows"`
	InvalidRows   int `json:"invalidRows"`
	DuplicateRows int `json:"duplicateRows"`
	EmptyRows     int `json:"emptyRows"`
	SelectedRows  int `json:"selectedRows"`
}

// Counts returns the aggregate counts.
func (p *ImportPreview[T]) Counts() PreviewCounts {
	return PreviewCounts{
		TotalRows:     p.TotalRows,
		ValidRows:     p.ValidRows,
		InvalidRows:   p.InvalidRows,
		DuplicateRows: p.DuplicateRows,
		EmptyRows:     p.EmptyRows,
		SelectedRows:  p.SelectedRows,
	}
}

// SelectedItems returns the data of rows that are selected and valid, in row order.
func (p *ImportPreview[T]) SelectedItems() []T {
	var items []T
	for _, row := range p.Rows {
		if row.Selected && row.Status == StatusValid {
			items = append(items, row.Data)
		}
	}
	return items
}

// Row returns a pointer to the row with the given id.
func (p *ImportPreview[T]) Row(id string) (*ImportEntity[T], bool) {
	for i := range p.Rows {
		if p.Rows[i].ID == id {
			return &p.Rows[i], true
		}
	}
	return nil, false
}

// Clone returns a copy whose row slice can be edited independently.
func (p *ImportPreview[T]) Clone() *ImportPreview[T] {
	if p == nil {
		return nil
	}
	out := *p
	out.Rows = make([]ImportEntity[T], len(p.Rows))
	copy(out.Rows, p.Rows)
	return &out
}
