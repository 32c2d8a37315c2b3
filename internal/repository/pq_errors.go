package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// immutableSQLState SQLSTATE raised by audit_guard_immutable()
// (plpgsql RAISE EXCEPTION). The message prefix is checked as well so an
// unrelated P0001 from some other routine is not misclassified.
const immutableSQLState = "P0001"

const immutableMessage = "audit storage is immutable"

// mapImmutableErr translates the storage guard's rejection into
// domain.ErrImmutabilityViolation. Everything else passes through
// unchanged.
func mapImmutableErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) &&
		string(pqErr.Code) == immutableSQLState &&
		strings.Contains(pqErr.Message, immutableMessage) {
		return domain.ErrImmutabilityViolation
	}
	return err
}
