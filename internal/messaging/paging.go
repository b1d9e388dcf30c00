package messaging

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 50

	// MaxPage keeps (page-1)*limit inside int32 so the offset never wraps.
	MaxPage = math.MaxInt32 / MaxLimit
)

// ClampPage bounds page to [1, MaxPage].
func ClampPage(page int) int {
	if page < 1 {
		return DefaultPage
	}
	if page > MaxPage {
		return MaxPage
	}
	return page
}

func pageOffset(page, limit int) int {
	return (page - 1) * limit
}

// ClampLimit bounds limit to [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func totalPages(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
