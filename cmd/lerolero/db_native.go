//go:build !cgo_sqlite

package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// initDB opens the database with the pure Go driver. That driver does not
// understand the mattn-style "_journal_mode" parameters, so they are
// rewritten into the "_pragma" form it expects.
func initDB(dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", nativeDSN(dataSource))
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot reach database %s: %w", dataSource, err)
	}
	return db, nil
}

func nativeDSN(dataSource string) string {
	path, query, found := strings.Cut(dataSource, "?")
	if !found {
		return dataSource
	}
	var params []string
	for _, param := range strings.Split(query, "&") {
		key, value, _ := strings.Cut(param, "=")
		switch key {
		case "_journal_mode":
			params = append(params, "_pragma=journal_mode("+value+")")
		case "_busy_timeout":
			params = append(params, "_pragma=busy_timeout("+value+")")
		case "_synchronous":
			params = append(params, "_pragma=synchronous("+value+")")
		default:
			params = append(params, param)
		}
	}
	return path + "?" + strings.Join(params, "&")
}
