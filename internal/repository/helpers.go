package repository

import (
	"database/sql"
	"errors"

	"github.com/redis/go-redis/v9"
)

// isMissing reports whether err only says the row or key does not exist.
func isMissing(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, redis.Nil)
}

// HandleNotFound turns a missing row or key into (nil, nil) so Find* and Get
// callers can treat absence as a normal result.
//
//	var key model.APIKey
//	err := r.db.GetContext(ctx, &key, query, args...)
//	return HandleNotFound(&key, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if isMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
