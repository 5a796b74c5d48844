package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"github.com/kirinyoku/oneday/internal/repository"
)

const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452
	errCheckViolated   = 3819
)

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var me *driver.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry, errCheckViolated:
			return repository.ErrConflict
		case errNoReferencedRow:
			return repository.ErrNotFound
		case errLockWaitTimeout:
			return repository.ErrLockTimeout
		case errDeadlock:
			return repository.ErrRetryable
		}
	}

	return err
}

func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s:%w", op, translateDBErr(err))
}
