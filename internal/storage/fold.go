package storage

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// foldFunc is a SQL function lowering text with Unicode case rules. The
// built-in lower() and LIKE only fold ASCII.
const foldFunc = "casefold"

func init() {
	err := sqlite.RegisterDeterministicScalarFunction(foldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return fold(v), nil
			case []byte:
				return fold(string(v)), nil
			default:
				return v, nil
			}
		})
	if err != nil {
		panic("register " + foldFunc + ": " + err.Error())
	}
}

func fold(s string) string {
	return strings.ToLower(s)
}
