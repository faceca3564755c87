package model

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// ListQuery selects a page of notifications for one viewer.
type ListQuery struct {
	TenantID string
	UserID   string
	Role     Role
	Status   StatusFilter
	Page     int
	Limit    int
}

// Offset returns the row offset of the page.
func (q ListQuery) Offset() int {
	return q.Page * q.Limit
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	TotalCount  int64 `json:"total_count"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	Limit       int   `json:"limit"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

// NewPagination computes total_pages = ceil(total/limit).
func NewPagination(total int64, page, limit int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		TotalCount:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		Limit:       limit,
		HasNext:     page+1 < totalPages,
		HasPrev:     page > 0,
	}
}

// NotificationPage is one page of a viewer's notifications.
type NotificationPage struct {
	Items      []*NotificationView `json:"notifications"`
	Pagination Pagination          `json:"pagination"`
}
