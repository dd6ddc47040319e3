package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

var (
	ErrUniqueViolation = errors.New("unique violation")
	ErrStrikeNotFound  = errors.New("strike not found")
	ErrTicketNotFound  = errors.New("ticket not found")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
