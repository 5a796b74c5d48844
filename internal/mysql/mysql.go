package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"
)

type Config struct {
	User     string
	Password string
	Addr     string
	DBName   string
	MaxConns int
	// LockWait bounds InnoDB row-lock waits; rounded up to whole seconds.
	LockWait time.Duration
}

// DSN renders cfg for go-sql-driver/mysql. Times are parsed in UTC and
// UPDATE reports matched rather than changed rows.
func (cfg Config) DSN() string {
	dc := driver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = cfg.Addr
	dc.DBName = cfg.DBName
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.ClientFoundRows = true
	dc.Params = map[string]string{"charset": "utf8mb4"}

	if cfg.LockWait > 0 {
		secs := int((cfg.LockWait + time.Second - 1) / time.Second)
		dc.Params["innodb_lock_wait_timeout"] = strconv.Itoa(secs)
	}

	return dc.FormatDSN()
}

func New(ctx context.Context, cfg Config) (*sql.DB, error) {
	const op = "mysql.New"

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return db, nil
}
