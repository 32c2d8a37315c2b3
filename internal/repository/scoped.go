package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	"github.com/seahkrah/SmartAttend-sub012/internal/tenant"
)

// executor is satisfied by *sql.DB and *sql.Tx so scoped statements can run
// inside the same transaction as their audit record.
type executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ScopedDB the tenant-scoped data access layer. Queries can only be built
// against registered tables, and can only execute once a tenant context has
// been attached; the tenant predicate is injected into every generated
// statement and cannot be removed or overridden by the caller.
type ScopedDB struct {
	db       *sql.DB
	registry *tenant.Registry
}

func NewScopedDB(db *sql.DB, registry *tenant.Registry) *ScopedDB {
	return &ScopedDB{db: db, registry: registry}
}

// Table starts a query against a registered table. Unregistered tables are
// rejected here, before any context or SQL exists (fail closed).
func (s *ScopedDB) Table(name string) (*ScopedQuery, error) {
	t, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &ScopedQuery{exec: s.db, table: t}, nil
}

// ScopedQuery a query under construction for one registered table.
// Zero shared state: ForTenant and Tx return copies, so a ScopedQuery may
// be used concurrently across requests.
type ScopedQuery struct {
	exec  executor
	table tenant.Table
	tctx  *tenant.Context
}

// ForTenant attaches the tenant context. Every subsequent statement is
// scoped to tctx's tenant.
func (q *ScopedQuery) ForTenant(tctx *tenant.Context) *ScopedQuery {
	cp := *q
	cp.tctx = tctx
	return &cp
}

// Tx reparents the query onto an open transaction.
func (q *ScopedQuery) Tx(tx *sql.Tx) *ScopedQuery {
	cp := *q
	cp.exec = tx
	return &cp
}

func (q *ScopedQuery) require() error {
	if q.tctx == nil || q.tctx.TenantID() == "" {
		return fmt.Errorf("table %q: %w", q.table.Name, domain.ErrMissingTenantContext)
	}
	return nil
}

// identPattern safe SQL identifiers; anything else is rejected so caller
// input can never splice into the generated statement as an identifier.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// rebind rewrites caller-side '?' placeholders to $n, continuing after the
// placeholders the layer itself injected.
func rebind(where string, startIdx int) string {
	var b strings.Builder
	n := startIdx
	for _, ch := range where {
		if ch == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Select runs a scoped SELECT. where uses '?' placeholders and may be
// empty; it is ANDed after the injected tenant predicate, never instead of
// it. Rows come back as column->value maps (the layer serves arbitrary
// registered tables, so there is no static row type).
func (q *ScopedQuery) Select(ctx context.Context, columns []string, where string, args []any, opts ...SelectOption) ([]map[string]any, error) {
	if err := q.require(); err != nil {
		return nil, err
	}
	for _, c := range columns {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
	}
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, cols, q.table.Name, q.table.Column)
	allArgs := []any{q.tctx.TenantID()}
	if where != "" {
		query += ` AND (` + rebind(where, 2) + `)`
		allArgs = append(allArgs, args...)
	}

	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.orderBy != "" {
		query += ` ORDER BY ` + o.orderBy
	}
	if o.limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, o.limit)
	}
	if o.offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, o.offset)
	}

	rows, err := q.exec.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("scoped select %s: %w", q.table.Name, err)
	}
	defer rows.Close()
	return scanMaps(rows)
}

// SelectOne runs a scoped SELECT expected to match at most one row.
// Returns sql.ErrNoRows (wrapped) when nothing matches.
func (q *ScopedQuery) SelectOne(ctx context.Context, columns []string, where string, args []any) (map[string]any, error) {
	res, err := q.Select(ctx, columns, where, args, WithLimit(2))
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("scoped select %s: %w", q.table.Name, sql.ErrNoRows)
	}
	if len(res) > 1 {
		return nil, fmt.Errorf("scoped select %s: expected one row, got %d", q.table.Name, len(res))
	}
	return res[0], nil
}

// Count runs a scoped COUNT(*).
func (q *ScopedQuery) Count(ctx context.Context, where string, args []any) (int, error) {
	if err := q.require(); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, q.table.Name, q.table.Column)
	allArgs := []any{q.tctx.TenantID()}
	if where != "" {
		query += ` AND (` + rebind(where, 2) + `)`
		allArgs = append(allArgs, args...)
	}
	var n int
	if err := q.exec.QueryRowContext(ctx, query, allArgs...).Scan(&n); err != nil {
		return 0, fmt.Errorf("scoped count %s: %w", q.table.Name, err)
	}
	return n, nil
}

// Insert inserts one or more rows, stamping the tenant discriminator onto
// every row. A row that carries its own discriminator value for a different
// tenant is rejected as a cross-tenant attempt.
func (q *ScopedQuery) Insert(ctx context.Context, rowsIn []map[string]any) (int64, error) {
	if err := q.require(); err != nil {
		return 0, err
	}
	if len(rowsIn) == 0 {
		return 0, nil
	}

	// Stable, shared column order across all rows: union of keys + discriminator.
	colSet := map[string]bool{q.table.Column: true}
	for _, row := range rowsIn {
		for k := range row {
			if err := checkIdent(k); err != nil {
				return 0, err
			}
			colSet[k] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var args []any
	var tuples []string
	for _, row := range rowsIn {
		if supplied, ok := row[q.table.Column]; ok {
			if s, _ := supplied.(string); s != q.tctx.TenantID() {
				return 0, fmt.Errorf("insert into %s with %s=%v: %w",
					q.table.Name, q.table.Column, supplied, domain.ErrCrossTenantAccess)
			}
		}
		ph := make([]string, 0, len(cols))
		for _, c := range cols {
			if c == q.table.Column {
				args = append(args, q.tctx.TenantID())
			} else {
				args = append(args, row[c]) // absent keys insert NULL
			}
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES %s`,
		q.table.Name, strings.Join(cols, ", "), strings.Join(tuples, ", "))
	res, err := q.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("scoped insert %s: %w", q.table.Name, mapImmutableErr(err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertReturning inserts one row and returns the named column of the
// inserted row as text, so rows with generated defaults can be re-read by
// primary key. Same discriminator stamping and cross-tenant rejection as
// Insert.
func (q *ScopedQuery) InsertReturning(ctx context.Context, row map[string]any, returning string) (string, error) {
	if err := q.require(); err != nil {
		return "", err
	}
	if err := checkIdent(returning); err != nil {
		return "", err
	}
	if supplied, ok := row[q.table.Column]; ok {
		if s, _ := supplied.(string); s != q.tctx.TenantID() {
			return "", fmt.Errorf("insert into %s with %s=%v: %w",
				q.table.Name, q.table.Column, supplied, domain.ErrCrossTenantAccess)
		}
	}

	colSet := map[string]bool{q.table.Column: true}
	for k := range row {
		if err := checkIdent(k); err != nil {
			return "", err
		}
		colSet[k] = true
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var args []any
	ph := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == q.table.Column {
			args = append(args, q.tctx.TenantID())
		} else {
			args = append(args, row[c])
		}
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s::text`,
		q.table.Name, strings.Join(cols, ", "), strings.Join(ph, ", "), returning)
	var ret string
	if err := q.exec.QueryRowContext(ctx, query, args...).Scan(&ret); err != nil {
		return "", fmt.Errorf("scoped insert %s: %w", q.table.Name, mapImmutableErr(err))
	}
	return ret, nil
}

// Update runs a scoped UPDATE. The SET map may not touch the discriminator
// column; the tenant predicate is applied before any caller predicate.
func (q *ScopedQuery) Update(ctx context.Context, set map[string]any, where string, args []any) (int64, error) {
	if err := q.require(); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, fmt.Errorf("scoped update %s: empty SET", q.table.Name)
	}
	if _, ok := set[q.table.Column]; ok {
		return 0, fmt.Errorf("update of %s.%s: %w", q.table.Name, q.table.Column, domain.ErrCrossTenantAccess)
	}

	cols := make([]string, 0, len(set))
	for c := range set {
		if err := checkIdent(c); err != nil {
			return 0, err
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	allArgs := []any{q.tctx.TenantID()}
	var assigns []string
	for _, c := range cols {
		allArgs = append(allArgs, set[c])
		assigns = append(assigns, fmt.Sprintf("%s = $%d", c, len(allArgs)))
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1`,
		q.table.Name, strings.Join(assigns, ", "), q.table.Column)
	if where != "" {
		query += ` AND (` + rebind(where, len(allArgs)+1) + `)`
		allArgs = append(allArgs, args...)
	}

	res, err := q.exec.ExecContext(ctx, query, allArgs...)
	if err != nil {
		return 0, fmt.Errorf("scoped update %s: %w", q.table.Name, mapImmutableErr(err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Delete runs a scoped DELETE. The tenant predicate always applies; an
// empty where deletes the tenant's rows only, never anyone else's.
func (q *ScopedQuery) Delete(ctx context.Context, where string, args []any) (int64, error) {
	if err := q.require(); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, q.table.Name, q.table.Column)
	allArgs := []any{q.tctx.TenantID()}
	if where != "" {
		query += ` AND (` + rebind(where, 2) + `)`
		allArgs = append(allArgs, args...)
	}
	res, err := q.exec.ExecContext(ctx, query, allArgs...)
	if err != nil {
		return 0, fmt.Errorf("scoped delete %s: %w", q.table.Name, mapImmutableErr(err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SelectOption ORDER BY / LIMIT / OFFSET for Select.
type SelectOption func(*selectOptions)

type selectOptions struct {
	orderBy string
	limit   int
	offset  int
}

// WithOrderBy sets the ORDER BY clause. The column name is validated; dir
// must be "ASC" or "DESC".
func WithOrderBy(column, dir string) SelectOption {
	return func(o *selectOptions) {
		if checkIdent(column) != nil {
			return
		}
		if dir != "ASC" && dir != "DESC" {
			dir = "ASC"
		}
		o.orderBy = column + " " + dir
	}
}

func WithLimit(n int) SelectOption  { return func(o *selectOptions) { o.limit = n } }
func WithOffset(n int) SelectOption { return func(o *selectOptions) { o.offset = n } }

// scanMaps scans all rows into column->value maps, decoding []byte to
// string for text-ish values.
func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
