package provision

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hirespark/internal/dump"
)

// --- Fake store ---

type fakeStore struct {
	execs     []string
	execErr   error
	execErrAt int // 1-based call that fails; 0 fails every call when execErr is set

	tables    []string
	tablesErr error
	counts    map[string]int64
	countErrs map[string]error

	tablesCalled bool
	closes       int
}

func (f *fakeStore) Exec(_ context.Context, query string) error {
	f.execs = append(f.execs, query)
	if f.execErr != nil && (f.execErrAt == 0 || f.execErrAt == len(f.execs)) {
		return f.execErr
	}
	return nil
}

func (f *fakeStore) Tables(_ context.Context) ([]string, error) {
	f.tablesCalled = true
	return f.tables, f.tablesErr
}

func (f *fakeStore) CountRows(_ context.Context, table string) (int64, error) {
	if err := f.countErrs[table]; err != nil {
		return 0, err
	}
	return f.counts[table], nil
}

func (f *fakeStore) Close() error {
	f.closes++
	return nil
}

// --- Helpers ---

const testDump = "CREATE TABLE users (id INT);\nCREATE TABLE admins (id INT);\nINSERT INTO users VALUES (1);\n"

func healthyStore() *fakeStore {
	return &fakeStore{
		tables: []string{"admins", "job_applications", "jobs", "users"},
		counts: map[string]int64{"users": 1, "admins": 1, "jobs": 3, "job_applications": 0},
	}
}

type harness struct {
	out    *bytes.Buffer
	opens  int
	prov   *Provisioner
	target string
}

func newHarness(t *testing.T, store Store, openErr error, src dump.Source, split bool) *harness {
	t.Helper()

	h := &harness{out: &bytes.Buffer{}, target: "root@127.0.0.1:3306"}
	open := func(context.Context) (Store, error) {
		h.opens++
		if openErr != nil {
			return nil, openErr
		}
		return store, nil
	}

	p, err := New(Config{
		Target:   h.target,
		Database: "jobspark",
		Split:    split,
		Output:   h.out,
	}, open, src)
	require.NoError(t, err)
	h.prov = p

	return h
}

func embedded(sql string) dump.Source {
	return dump.Embedded{Label: "test.sql", SQL: sql}
}

// --- Tests ---

func TestRun_Success(t *testing.T) {
	store := healthyStore()
	h := newHarness(t, store, nil, embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.execs, 1)
	assert.Equal(t, testDump, store.execs[0], "dump must be executed as one command")
	assert.Equal(t, 1, store.closes)
	assert.Equal(t, 1, h.opens)

	out := h.out.String()
	assert.Contains(t, out, "Connecting to MySQL at root@127.0.0.1:3306")
	assert.Contains(t, out, "Database updated successfully.")
	assert.Contains(t, out, "Tables in database (4):")
	assert.Contains(t, out, "  - job_applications\n")
	assert.Contains(t, out, "  users: 1 rows\n")
	assert.Contains(t, out, "  jobs: 3 rows\n")
	assert.Contains(t, out, "  job_applications: 0 rows\n")
	assert.NotContains(t, out, "Error updating database")
	assert.NotContains(t, out, "Troubleshooting")
}

func TestRun_MissingTableIsNotFatal(t *testing.T) {
	store := healthyStore()
	store.tables = []string{"job_applications", "jobs", "users"}
	store.countErrs = map[string]error{
		"admins": &mysql.MySQLError{Number: 1146, Message: "Table 'jobspark.admins' doesn't exist"},
	}
	h := newHarness(t, store, nil, embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.NoError(t, err)

	out := h.out.String()
	assert.Contains(t, out, "  admins: error - ")
	assert.Contains(t, out, "doesn't exist")
	assert.Contains(t, out, "  users: 1 rows\n")
	assert.Contains(t, out, "  jobs: 3 rows\n")
	assert.Contains(t, out, "  job_applications: 0 rows\n")
	assert.Equal(t, 1, bytes.Count(h.out.Bytes(), []byte(": error - ")), "only the missing table gets a diagnostic")
	assert.Equal(t, 1, store.closes)
}

func TestRun_ConnectionRefused(t *testing.T) {
	refused := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED},
	}
	h := newHarness(t, nil, errors.Wrap(refused, "ping"), embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 1, h.opens)

	out := h.out.String()
	assert.Contains(t, out, "Error updating database: connect to database")
	assert.Contains(t, out, "Troubleshooting:")
	assert.Contains(t, out, "Make sure the MySQL server is running")
	assert.NotContains(t, out, "Database connection closed.", "nothing to close when the connection never opened")
	assert.NotContains(t, out, "Reading SQL dump")
}

func TestRun_UnknownDatabase(t *testing.T) {
	h := newHarness(t, nil, &mysql.MySQLError{Number: 1049, Message: "Unknown database 'jobspark'"}, embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.Error(t, err)

	out := h.out.String()
	assert.Contains(t, out, `Database "jobspark" does not exist`)
	assert.Contains(t, out, "CREATE DATABASE `jobspark`;")
	assert.NotContains(t, out, "Make sure the MySQL server is running")
}

func TestRun_AccessDenied(t *testing.T) {
	h := newHarness(t, nil, &mysql.MySQLError{Number: 1045, Message: "Access denied for user 'root'@'localhost'"}, embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, h.out.String(), "Check DB_USER and DB_PASSWORD")
}

func TestRun_DumpReadFailureClosesConnection(t *testing.T) {
	store := healthyStore()
	src := dump.File{Path: filepath.Join(t.TempDir(), "missing.sql")}
	h := newHarness(t, store, nil, src, false)

	err := h.prov.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Empty(t, store.execs)
	assert.Equal(t, 1, store.closes)

	out := h.out.String()
	assert.Contains(t, out, "Error updating database: read dump")
	assert.NotContains(t, out, "Troubleshooting")
	assert.Contains(t, out, "Database connection closed.")
}

func TestRun_ExecFailureClosesConnection(t *testing.T) {
	store := healthyStore()
	store.execErr = &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"}
	h := newHarness(t, store, nil, embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.Error(t, err)

	assert.False(t, store.tablesCalled, "verification must not run after a failed dump")
	assert.Equal(t, 1, store.closes)
	assert.Contains(t, h.out.String(), "Error updating database: execute dump")
}

func TestRun_ListTablesFailureIsFatal(t *testing.T) {
	store := healthyStore()
	store.tablesErr = errors.New("lost connection")
	h := newHarness(t, store, nil, embedded(testDump), false)

	err := h.prov.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list tables")
	assert.Equal(t, 1, store.closes)
}

func TestRun_ClosedAfterOutcomeIsReported(t *testing.T) {
	store := healthyStore()
	store.execErr = errors.New("boom")
	h := newHarness(t, store, nil, embedded(testDump), false)

	require.Error(t, h.prov.Run(context.Background()))

	out := h.out.String()
	failure := bytes.Index([]byte(out), []byte("Error updating database"))
	closed := bytes.Index([]byte(out), []byte("Database connection closed."))
	require.NotEqual(t, -1, failure)
	require.NotEqual(t, -1, closed)
	assert.Less(t, failure, closed)
}

func TestRun_SplitExecutesEachStatement(t *testing.T) {
	store := healthyStore()
	h := newHarness(t, store, nil, embedded(testDump), true)

	require.NoError(t, h.prov.Run(context.Background()))

	assert.Equal(t, []string{
		"CREATE TABLE users (id INT)",
		"CREATE TABLE admins (id INT)",
		"INSERT INTO users VALUES (1)",
	}, store.execs)
	assert.Contains(t, h.out.String(), "Database updated successfully (3 statements).")
	assert.Equal(t, 1, store.closes)
}

func TestRun_SplitStopsAtFailingStatement(t *testing.T) {
	store := healthyStore()
	store.execErr = &mysql.MySQLError{Number: 1050, Message: "Table 'admins' already exists"}
	store.execErrAt = 2
	h := newHarness(t, store, nil, embedded(testDump), true)

	err := h.prov.Run(context.Background())
	require.Error(t, err)

	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 2, stmtErr.Index)
	assert.Equal(t, "CREATE TABLE admins (id INT)", stmtErr.Statement)

	assert.Len(t, store.execs, 2)
	assert.Equal(t, 1, store.closes)
	assert.Contains(t, h.out.String(), "statement 2 (CREATE TABLE admins (id INT))")
}

func TestRun_SplitEmptyDump(t *testing.T) {
	store := healthyStore()
	h := newHarness(t, store, nil, embedded("-- only a comment\n"), true)

	err := h.prov.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no statements")
	assert.Empty(t, store.execs)
	assert.Equal(t, 1, store.closes)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "SELECT 1", excerpt("SELECT\n   1"))

	long := "INSERT INTO jobs (title) VALUES ('a very long title that keeps going and going')"
	got := excerpt(long)
	assert.Len(t, got, 63)
	assert.Equal(t, "...", got[60:])
}
