package payload

// Sort order constants
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Paged request parameters, bound from the query string. Other
// parameters cannot be embedded, they must be declared on the concrete
// request struct or gin validation skips them.
type (
	ListReqQuery struct {
		PageIndex *int `form:"page_index" binding:"required"`
		PageSize  *int `form:"page_size" binding:"required"`
	}
	ListResp[T any] struct {
		Rows  []T   `json:"rows"`
		Count int64 `json:"count"`
	}
)
