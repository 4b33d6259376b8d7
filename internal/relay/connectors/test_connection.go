package connectors

import (
	"context"
	"database/sql"
	"fmt"
)

// TestResult is the outcome of a connection liveness probe. It is always
// returned, never raised: callers see {status, message} either way.
type TestResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func failed(err error) TestResult {
	return TestResult{Status: "failed", Message: err.Error()}
}

func success(message string) TestResult {
	return TestResult{Status: "success", Message: message}
}

// TestConnection performs a lightweight liveness check for a connection
// type and credential set: a SELECT 1 for SQL sources, OAuth login for
// Salesforce, an HTTP probe for REST. It never returns an error — failures
// are reported in the result's Status field.
func TestConnection(ctx context.Context, connType string, credentials map[string]string) TestResult {
	switch connType {
	case "mysql":
		return testSQLConnection(ctx, "mysql", mysqlDSN(credentials), "Connected to MySQL successfully")
	case "postgres":
		return testSQLConnection(ctx, "postgres", postgresDSN(credentials), "Connected to PostgreSQL successfully")
	case "salesforce":
		if _, err := salesforceLogin(ctx, credentials); err != nil {
			return failed(err)
		}
		return success("Authenticated with Salesforce successfully")
	case "rest_api":
		base := credentials["base_url"]
		if base == "" {
			base = credentials["url"]
		}
		if base == "" {
			return success("Credentials stored (no base_url to ping)")
		}
		status, err := probeREST(ctx, base)
		if err != nil {
			return failed(err)
		}
		return success(fmt.Sprintf("Reachable (HTTP %s)", status))
	default:
		return success(fmt.Sprintf("Credentials stored for %s (no live test available)", connType))
	}
}

func testSQLConnection(ctx context.Context, driverName, dsn, okMessage string) TestResult {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return failed(err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return failed(err)
	}
	if _, err := db.ExecContext(ctx, "SELECT 1"); err != nil {
		return failed(err)
	}
	return success(okMessage)
}
