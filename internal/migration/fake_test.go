package migration

import (
	"context"
	"strings"
)

type fakeCall struct {
	kind  string
	query string
}

type fakeRows struct {
	remaining int
	closed    *bool
	err       error
}

func (r *fakeRows) Next() bool {
	if r.remaining == 0 {
		return false
	}
	r.remaining--
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return nil }

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() error {
	*r.closed = true
	return nil
}

// fakeDatabase records every call. Statements containing failOn fail.
type fakeDatabase struct {
	calls      []fakeCall
	failOn     string
	rowsClosed bool
	rowsErr    error
}

func (f *fakeDatabase) fail(query string) bool {
	return f.failOn != "" && strings.Contains(query, f.failOn)
}

func (f *fakeDatabase) BeginTransaction(context.Context) error {
	f.calls = append(f.calls, fakeCall{kind: "begin"})
	return nil
}

func (f *fakeDatabase) EndTransaction(context.Context) error {
	f.calls = append(f.calls, fakeCall{kind: "end"})
	return nil
}

func (f *fakeDatabase) SetTransactionSuccessful() {
	f.calls = append(f.calls, fakeCall{kind: "success"})
}

func (f *fakeDatabase) Exec(_ context.Context, query string, _ ...any) error {
	f.calls = append(f.calls, fakeCall{kind: "exec", query: query})
	if f.fail(query) {
		return errFake
	}
	return nil
}

func (f *fakeDatabase) Query(_ context.Context, query string, _ ...any) (Rows, error) {
	f.calls = append(f.calls, fakeCall{kind: "query", query: query})
	if f.fail(query) {
		return nil, errFake
	}
	return &fakeRows{remaining: 2, closed: &f.rowsClosed, err: f.rowsErr}, nil
}

func (f *fakeDatabase) Insert(_ context.Context, table string, _ map[string]any) (int64, error) {
	f.calls = append(f.calls, fakeCall{kind: "insert", query: table})
	return 1, nil
}

func (f *fakeDatabase) kinds() []string {
	kinds := make([]string, len(f.calls))
	for i, c := range f.calls {
		kinds[i] = c.kind
	}
	return kinds
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFake = fakeError("fake failure")
