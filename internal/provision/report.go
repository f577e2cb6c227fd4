package provision

import (
	"fmt"
	"io"

	"github.com/xenking/hirespark/internal/storage/mysql"
)

// reporter writes the human-readable progress lines. Write errors are
// ignored: stdout is best effort and never changes the outcome.
type reporter struct {
	w io.Writer
}

func (r *reporter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *reporter) connecting(target, database string) {
	r.printf("Connecting to MySQL at %s (database %q)...", target, database)
}

func (r *reporter) connected(database string) {
	r.printf("Connected to database %q.", database)
}

func (r *reporter) reading(source string) {
	r.printf("Reading SQL dump from %s...", source)
}

func (r *reporter) executing(split bool) {
	if split {
		r.printf("Executing SQL dump statement by statement...")
		return
	}
	r.printf("Executing SQL dump...")
}

func (r *reporter) applied(statements int) {
	if statements > 0 {
		r.printf("Database updated successfully (%d statements).", statements)
		return
	}
	r.printf("Database updated successfully.")
}

func (r *reporter) tables(names []string) {
	r.printf("")
	r.printf("Tables in database (%d):", len(names))
	for _, name := range names {
		r.printf("  - %s", name)
	}
}

func (r *reporter) countsHeader() {
	r.printf("")
	r.printf("Row counts:")
}

func (r *reporter) count(table string, n int64) {
	r.printf("  %s: %d rows", table, n)
}

func (r *reporter) countFailed(table string, err error) {
	r.printf("  %s: error - %v", table, err)
}

func (r *reporter) failure(err error) {
	r.printf("")
	r.printf("Error updating database: %v", err)
}

func (r *reporter) closed() {
	r.printf("Database connection closed.")
}

// hints prints troubleshooting advice for failures the driver lets us
// recognise. Unrecognised failures get no hint block.
func (r *reporter) hints(err error, cfg Config) {
	var lines []string
	switch mysql.Classify(err) {
	case mysql.FailureConnectionRefused:
		lines = []string{
			fmt.Sprintf("- MySQL refused the connection at %s.", cfg.Target),
			"- Make sure the MySQL server is running and accepting TCP connections.",
			"- Check DB_HOST and DB_PORT in your .env file.",
		}
	case mysql.FailureUnknownDatabase:
		lines = []string{
			fmt.Sprintf("- Database %q does not exist. Create it first:", cfg.Database),
			fmt.Sprintf("    CREATE DATABASE %s;", mysql.QuoteIdentifier(cfg.Database)),
			"- Or set DB_NAME in your .env file to an existing database.",
		}
	case mysql.FailureAccessDenied:
		lines = []string{
			"- MySQL rejected the credentials.",
			"- Check DB_USER and DB_PASSWORD in your .env file.",
		}
	default:
		return
	}

	r.printf("")
	r.printf("Troubleshooting:")
	for _, l := range lines {
		r.printf("  %s", l)
	}
}
