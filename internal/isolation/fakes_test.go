package isolation

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// fakeResult is a canned Select answer, matched by statement substring
type fakeResult struct {
	match string
	value interface{}
}

// fakeAdapter records every statement and answers Select from canned
// results. Unmatched Selects leave dest at its zero value, which models
// empty catalogs and missing rows.
type fakeAdapter struct {
	execs   []string
	args    [][]interface{}
	results []fakeResult
	execErr error
}

func (f *fakeAdapter) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	f.execs = append(f.execs, stmt)
	f.args = append(f.args, args)
	return f.execErr
}

func (f *fakeAdapter) Select(ctx context.Context, dest interface{}, stmt string, args ...interface{}) error {
	for _, r := range f.results {
		if !strings.Contains(stmt, r.match) {
			continue
		}
		rv := reflect.ValueOf(dest).Elem()
		v := reflect.ValueOf(r.value)
		switch {
		case v.Type().AssignableTo(rv.Type()):
			rv.Set(v)
		case rv.Kind() == reflect.Ptr && v.Type().AssignableTo(rv.Type().Elem()):
			p := reflect.New(rv.Type().Elem())
			p.Elem().Set(v)
			rv.Set(p)
		default:
			return fmt.Errorf("fake result for %q has type %T, want %s", r.match, r.value, rv.Type())
		}
		return nil
	}
	return nil
}

func (f *fakeAdapter) Transaction(ctx context.Context, fn func(tx Adapter) error) error {
	f.execs = append(f.execs, "BEGIN")
	if err := fn(f); err != nil {
		f.execs = append(f.execs, "ROLLBACK")
		return err
	}
	f.execs = append(f.execs, "COMMIT")
	return nil
}

// execMatching returns the recorded statements containing the substring
func (f *fakeAdapter) execMatching(substr string) []string {
	var out []string
	for _, stmt := range f.execs {
		if strings.Contains(stmt, substr) {
			out = append(out, stmt)
		}
	}
	return out
}

// storeReady makes requireStore pass
func storeReady() fakeResult {
	return fakeResult{match: "to_regclass", value: "migrations.plugin_migrations"}
}

type fakeInspector struct {
	tables []TableShape
	err    error
}

func (f *fakeInspector) ListTables(ctx context.Context, schemaName string) ([]TableShape, error) {
	return f.tables, f.err
}

type nopLogger struct{}

func (nopLogger) LogInfo(string, map[string]interface{}) {}
func (nopLogger) LogError(err error, _ string) error     { return err }
func (nopLogger) LogErrorf(err error, _ string, _ ...interface{}) error {
	return err
}
func (nopLogger) LogFatal(error, string)                  {}
func (nopLogger) LogDebug(string, map[string]interface{}) {}
func (nopLogger) LogWarn(string, map[string]interface{})  {}
func (n nopLogger) WithFields(map[string]interface{}) Logger {
	return n
}
func (n nopLogger) WithPlugin(string) Logger { return n }
func (n nopLogger) WithServer(string) Logger { return n }
