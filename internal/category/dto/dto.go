package dto

type CategoryFilters struct {
	SearchQuery string // Substring of the category name
	Page        int
	PageSize    int
}
