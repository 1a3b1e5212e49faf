package persistence

import (
	"strings"

	"gorm.io/gorm/clause"

	"github.com/erp/tenancy/internal/domain/shared"
)

// productOrderColumns maps the sort keys accepted on product listings to columns
var productOrderColumns = map[string]string{
	"code":          "code",
	"name":          "name",
	"selling_price": "selling_price",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

// orderBy builds the ORDER BY clause for filter. Keys outside allowed fall
// back to fallback; anything other than "asc" sorts descending. Column names
// are never taken from the request verbatim.
func orderBy(filter shared.Filter, allowed map[string]string, fallback string) clause.OrderByColumn {
	column, ok := allowed[strings.ToLower(strings.TrimSpace(filter.OrderBy))]
	if !ok {
		column = fallback
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   !strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc"),
	}
}
