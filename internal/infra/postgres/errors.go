package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"examprep-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

// classify wraps retryable driver failures in domain.TransientError and returns every
// other error unchanged.
func classify(op string, err error) error {
	if err == nil || domain.IsTransient(err) {
		return err
	}
	if isTransient(err) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return err
}

func isTransient(err error) bool {
	if code := sqlState(err); code != "" {
		return transientState(code)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// transientState covers connection exceptions, serialization failures, deadlocks,
// query cancellation and connection limits.
func transientState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "40001", "40P01", "57014", "53300", "57P01":
		return true
	}
	return false
}

func sqlState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	var connErr *pgconn.PgError
	if errors.As(err, &connErr) {
		return connErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == uniqueViolation
}
