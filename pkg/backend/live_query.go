package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	acceptJSON   = "application/json"
	acceptObject = "application/vnd.pgrst.object+json"
)

type liveTable struct {
	c    *Live
	name string
}

// Select starts a read query. No columns means all columns.
func (t *liveTable) Select(columns ...string) Query {
	q := t.query(http.MethodGet, nil)
	q.columns = columns
	return q
}

// Insert starts an insert of a single row or a slice of rows.
func (t *liveTable) Insert(values any) Query { return t.query(http.MethodPost, values) }

// Update starts an update of rows matching the filters.
func (t *liveTable) Update(values any) Query { return t.query(http.MethodPatch, values) }

// Delete starts a delete of rows matching the filters.
func (t *liveTable) Delete() Query { return t.query(http.MethodDelete, nil) }

// Upsert starts an insert merging (or ignoring) rows conflicting on unique columns.
func (t *liveTable) Upsert(values any, opts UpsertOptions) Query {
	q := t.query(http.MethodPost, values)
	q.onConflict = opts.OnConflict
	q.resolution = "merge-duplicates"
	if opts.IgnoreDuplicates {
		q.resolution = "ignore-duplicates"
	}
	return q
}

func (t *liveTable) query(method string, body any) *liveQuery {
	return &liveQuery{c: t.c, table: t.name, method: method, body: body}
}

type param struct {
	key, value string
}

// liveQuery accumulates query parts, chain methods modify and return the same query.
type liveQuery struct {
	c      *Live
	table  string
	method string
	body   any

	columns    []string
	returning  bool // representation requested for a mutation
	filters    []param
	orders     []string
	limit      int
	offset     int
	count      CountMethod
	onConflict string
	resolution string
	err        error // deferred builder error, reported by terminal methods
}

// Select sets the columns. For mutations it also asks to return affected rows.
func (q *liveQuery) Select(columns ...string) Query {
	q.columns = columns
	if q.method != http.MethodGet {
		q.returning = true
	}
	return q
}

// Eq matches column equal to value, nil value matches null.
func (q *liveQuery) Eq(column string, value any) Query {
	if isNil(value) {
		return q.filter(column, "is", "null")
	}
	return q.filter(column, "eq", formatValue(value))
}

func (q *liveQuery) Neq(column string, value any) Query {
	return q.filter(column, "neq", formatValue(value))
}

func (q *liveQuery) Gt(column string, value any) Query {
	return q.filter(column, "gt", formatValue(value))
}

func (q *liveQuery) Gte(column string, value any) Query {
	return q.filter(column, "gte", formatValue(value))
}

func (q *liveQuery) Lt(column string, value any) Query {
	return q.filter(column, "lt", formatValue(value))
}

func (q *liveQuery) Lte(column string, value any) Query {
	return q.filter(column, "lte", formatValue(value))
}

// Like matches case-sensitive pattern, % is the wildcard.
func (q *liveQuery) Like(column, pattern string) Query {
	return q.filter(column, "like", pattern)
}

// ILike matches case-insensitive pattern.
func (q *liveQuery) ILike(column, pattern string) Query {
	return q.filter(column, "ilike", pattern)
}

// Is checks for null, true, false or unknown.
func (q *liveQuery) Is(column string, value any) Query {
	return q.filter(column, "is", formatValue(value))
}

// In matches any of values.
func (q *liveQuery) In(column string, values ...any) Query {
	return q.filter(column, "in", formatList(values))
}

// Not negates operator, e.g. Not("status", "eq", "cancelled").
func (q *liveQuery) Not(column, operator string, value any) Query {
	v := formatValue(value)
	if operator == "in" {
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice {
			items := make([]any, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
			v = formatList(items)
		}
	}
	return q.filter(column, "not."+operator, v)
}

// Or matches any of raw filters, e.g. "sport.eq.football,sport.eq.futsal".
func (q *liveQuery) Or(filters string) Query {
	q.filters = append(q.filters, param{key: "or", value: "(" + filters + ")"})
	return q
}

// Match adds Eq for every key, in key order.
func (q *liveQuery) Match(values map[string]any) Query {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Eq(k, values[k])
	}
	return q
}

// Order adds a sort column, multiple calls sort by multiple columns.
func (q *liveQuery) Order(column string, ascending bool) Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit limits the number of rows.
func (q *liveQuery) Limit(n int) Query {
	q.limit = n
	return q
}

// Range selects rows from..to inclusive, 0-based.
func (q *liveQuery) Range(from, to int) Query {
	if from < 0 || to < from {
		q.err = fmt.Errorf("invalid range %d-%d", from, to)
		return q
	}
	q.offset = from
	q.limit = to - from + 1
	return q
}

// Count asks for the total number of matching rows, reported in Result.Count.
func (q *liveQuery) Count(method CountMethod) Query {
	q.count = method
	return q
}

// Execute sends the query.
func (q *liveQuery) Execute(ctx context.Context) (*Result, error) {
	return q.run(ctx, acceptJSON)
}

// Single sends the query expecting exactly one row, the service fails otherwise.
func (q *liveQuery) Single(ctx context.Context) (*Result, error) {
	return q.run(ctx, acceptObject)
}

// MaybeSingle sends the query expecting zero or one row. Zero rows give null data,
// more than one row is an error.
func (q *liveQuery) MaybeSingle(ctx context.Context) (*Result, error) {
	res, err := q.run(ctx, acceptJSON)
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		return res, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(res.Data, &rows); err != nil {
		return nil, fmt.Errorf("can't decode rows of %s: %w", q.table, err)
	}
	switch len(rows) {
	case 0:
		res.Data = json.RawMessage("null")
	case 1:
		res.Data = rows[0]
	default:
		return nil, &APIError{Status: http.StatusNotAcceptable, Code: "PGRST116",
			Message: "JSON object requested, multiple (or no) rows returned",
			Details: fmt.Sprintf("The result contains %d rows", len(rows))}
	}
	return res, nil
}

func (q *liveQuery) run(ctx context.Context, accept string) (*Result, error) {
	if q.err != nil {
		return nil, q.err
	}

	params := url.Values{}
	if q.method == http.MethodGet || q.returning {
		cols := "*"
		if len(q.columns) > 0 {
			cols = strings.Join(q.columns, ",")
		}
		params.Set("select", cols)
	}
	for _, f := range q.filters {
		params.Add(f.key, f.value)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		params.Set("offset", strconv.Itoa(q.offset))
	}
	if q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}

	var prefer []string
	if q.method != http.MethodGet {
		if q.returning {
			prefer = append(prefer, "return=representation")
		} else {
			prefer = append(prefer, "return=minimal")
		}
	}
	if q.resolution != "" {
		prefer = append(prefer, "resolution="+q.resolution)
	}
	if q.count != "" {
		prefer = append(prefer, "count="+string(q.count))
	}
	hdr := http.Header{}
	hdr.Set("Accept", accept)
	if len(prefer) > 0 {
		hdr.Set("Prefer", strings.Join(prefer, ","))
	}

	token, err := q.c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := q.c.send(ctx, request{method: q.method, path: restPath + "/" + q.table,
		query: params, body: q.body, token: token, header: hdr})
	if err != nil {
		return nil, err
	}

	res := &Result{Data: resp.body, Status: resp.status, Count: -1}
	if len(strings.TrimSpace(string(res.Data))) == 0 {
		res.Data = json.RawMessage("null")
	}
	if q.count != "" {
		res.Count = parseContentRange(resp.header.Get("Content-Range"))
	}
	return res, nil
}

func (q *liveQuery) filter(column, op, value string) Query {
	q.filters = append(q.filters, param{key: column, value: op + "." + value})
	return q
}

// parseContentRange returns total from "0-9/42", -1 if unknown
func parseContentRange(s string) int64 {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return -1
	}
	total, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// formatValue renders a filter value, nil and nil pointers are null, times are RFC3339 in UTC.
func formatValue(v any) string {
	if isNil(v) {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		return formatValue(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

// formatList renders values for the in operator, quoting values with reserved characters.
func formatList(values []any) string {
	items := make([]string, 0, len(values))
	for _, v := range values {
		s := formatValue(v)
		if strings.ContainsAny(s, `,()":`) {
			s = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
		}
		items = append(items, s)
	}
	return "(" + strings.Join(items, ",") + ")"
}
