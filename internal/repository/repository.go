package repository

import (
	"errors"

	"gorm.io/gorm"

	"marketplace-sync-service/internal/apperrors"
)

// ListOptions contains paging options for list queries
type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) apply(query *gorm.DB) *gorm.DB {
	limit := o.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query = query.Limit(limit)
	if o.Offset > 0 {
		query = query.Offset(o.Offset)
	}
	return query
}

// translate maps gorm's not-found error onto the shared sentinel
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	return err
}
