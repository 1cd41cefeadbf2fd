package service

import (
	"strings"

	"expense_ingest/internal/model"
)

// ResolveCategory matches name case-insensitively against the user's
// categories. Without a match it returns the category named exactly fallback,
// or nil when that does not exist either.
func ResolveCategory(categories []model.Category, name, fallback string) *model.Category {
	if name != "" {
		for i := range categories {
			if strings.EqualFold(categories[i].Name, name) {
				return &categories[i]
			}
		}
	}
	if fallback == "" {
		return nil
	}
	for i := range categories {
		if categories[i].Name == fallback {
			return &categories[i]
		}
	}
	return nil
}
