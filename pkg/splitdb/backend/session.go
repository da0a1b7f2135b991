package backend

import (
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/ast"
	"github.com/pingcap/errors"
)

const (
	sqlResetSQLMode  = "SET SQL_MODE=''"
	sqlUTCTimeZone   = "SET time_zone = '+00:00'"
	defaultCaseFolds = driver.CaseNatural
)

// initSession applies the settings every connection opened by the router shares.
func initSession(conn driver.Conn, p *profile.Profile, caseFolding string) error {
	if err := conn.SetOption(driver.OptionMultiStatements, false); err != nil {
		return errors.WithMessage(err, "disable multi statements error")
	}
	if _, err := conn.Execute(sqlResetSQLMode); err != nil {
		return errors.WithMessage(err, "reset sql mode error")
	}
	if _, err := conn.Execute(sqlUTCTimeZone); err != nil {
		return errors.WithMessage(err, "set time zone error")
	}
	if err := conn.SetOption(driver.OptionErrMode, driver.ErrModeException); err != nil {
		return errors.WithMessage(err, "set error mode error")
	}
	if caseFolding == "" {
		caseFolding = defaultCaseFolds
	}
	if err := conn.SetOption(driver.OptionCaseFolding, caseFolding); err != nil {
		return errors.WithMessage(err, "set case folding error")
	}

	if p.InitStatements != "" {
		stmts, err := ast.SplitStatements(p.InitStatements)
		if err != nil {
			return errors.WithMessage(err, "split init statements error")
		}
		for _, stmt := range stmts {
			if _, err := conn.Execute(stmt); err != nil {
				return errors.WithMessage(err, "execute init statement error: "+stmt)
			}
		}
	}

	if err := conn.SetOption(driver.OptionBufferedQuery, p.Buffered); err != nil {
		return errors.WithMessage(err, "set buffered query error")
	}
	return nil
}
