package shared

// ListParams captures offset/limit list inputs.
type ListParams struct {
	Offset int
	Limit  int
}

// Normalize clamps the params to sane bounds.
func (p ListParams) Normalize() ListParams {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// NewPagination computes pagination metadata.
func NewPagination(params ListParams, total int) Pagination {
	return Pagination{Offset: params.Offset, Limit: params.Limit, Total: total}
}
