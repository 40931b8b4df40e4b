package migrate

import (
	"context"
	"strings"
	"testing"

	"github.com/example/baybook/internal/db"
)

type fakeDB struct {
	applied map[string]bool
	execs   []string
}

type boolRow bool

func (r boolRow) Scan(dest ...any) error {
	*dest[0].(*bool) = bool(r)
	return nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) error {
	f.execs = append(f.execs, sql)
	if strings.HasPrefix(sql, "INSERT INTO schema_migrations") {
		f.applied[args[0].(string)] = true
	}
	return nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) db.Row {
	return boolRow(f.applied[args[0].(string)])
}

func (f *fakeDB) Query(context.Context, string, ...any) (db.Rows, error) {
	panic("not used")
}

func TestFilesSorted(t *testing.T) {
	names, err := Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("Files = %v", names)
	}
}

func TestUpIsIdempotent(t *testing.T) {
	f := &fakeDB{applied: map[string]bool{}}
	if err := Up(context.Background(), f, nil); err != nil {
		t.Fatalf("Up: %v", err)
	}
	first := len(f.execs)
	if !f.applied["001_init.sql"] {
		t.Fatalf("001_init.sql not recorded")
	}
	if err := Up(context.Background(), f, nil); err != nil {
		t.Fatalf("second Up: %v", err)
	}
	if got := len(f.execs) - first; got != 1 {
		t.Fatalf("second Up ran %d statements, want only the bookkeeping table", got)
	}
}
