package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/rpggio/geoquest/internal/repository"
)

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed")
}

// isContention reports lock and serialization failures another attempt can fix.
func isContention(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// classify marks contention as a retryable conflict.
func classify(err error) error {
	if err == nil || errors.Is(err, repository.ErrConflict) {
		return err
	}
	if isContention(err) {
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	}
	return err
}
