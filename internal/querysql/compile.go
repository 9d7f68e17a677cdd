package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

// Catalog tables referenced by attribute and category predicates.
const (
	attributesTable     = "item_attributes"
	itemCategoriesTable = "item_categories"
	categoriesTable     = "categories"
)

// Statement is a compiled, parameterized SQL statement.
type Statement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// String renders the statement with its arguments for logs and explain output.
func (s Statement) String() string {
	return fmt.Sprintf("%s\n-- args: %v", s.SQL, s.Args)
}

// Compiler compiles queryir queries to parameterized SQL.
//
// CRITICAL: All values are parameterized, never interpolated. Identifiers
// are validated before they are written into SQL.
type Compiler struct {
	Dialect Dialect
}

// NewCompiler creates a compiler for the dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// CompileSelect compiles q into an ordered id query:
//
//	SELECT items.id FROM items WHERE <filter> ORDER BY items.id ASC
func (c *Compiler) CompileSelect(q queryir.Select) (Statement, error) {
	sql, args, err := c.idQuery(q)
	if err != nil {
		return Statement{}, err
	}
	sql += " ORDER BY " + q.From + "." + queryir.IDField + " ASC"
	return c.finish(sql, args), nil
}

// CompileDeleteStale compiles the delete half of a reconciliation:
//
//	DELETE FROM <table>
//	WHERE grouping_id = ?
//	  AND item_id NOT IN (<id query of q>)
//	  [AND item_id IN (<candidates>)]
//
// candidates == nil means an unscoped run. A non-nil empty slice matches no
// rows, so the statement deletes nothing.
func (c *Compiler) CompileDeleteStale(table string, groupingID int64, q queryir.Select, candidates []int64) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}

	idSQL, idArgs, err := c.idQuery(q)
	if err != nil {
		return Statement{}, err
	}

	var b strings.Builder
	args := make([]any, 0, len(idArgs)+len(candidates)+1)

	fmt.Fprintf(&b, "DELETE FROM %s WHERE grouping_id = ? AND item_id NOT IN (%s)", table, idSQL)
	args = append(args, groupingID)
	args = append(args, idArgs...)

	if candidates != nil {
		setSQL, setArgs := c.idSet("item_id", candidates)
		b.WriteString(" AND ")
		b.WriteString(setSQL)
		args = append(args, setArgs...)
	}

	return c.finish(b.String(), args), nil
}

// CompileInsertMatching compiles the insert half of a reconciliation:
//
//	INSERT INTO <table> (grouping_id, item_id, position)
//	SELECT CAST(? AS BIGINT), items.id, <position>
//	FROM items WHERE <filter>
//	ON CONFLICT (grouping_id, item_id) DO NOTHING
//
// The WHERE clause is always present. SQLite cannot otherwise tell the
// upsert's ON CONFLICT apart from a join constraint in INSERT...SELECT.
//
// Existing (grouping_id, item_id) pairs are left untouched, so the
// statement never errors on duplicates and never overwrites positions.
func (c *Compiler) CompileInsertMatching(table string, groupingID int64, q queryir.Select, position queryir.Expr) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	if res := queryir.ValidateExpr(position); !res.Valid {
		return Statement{}, res.Err()
	}
	if res := queryir.Validate(q); !res.Valid {
		return Statement{}, res.Err()
	}

	filterSQL, filterArgs, err := c.predicate(q.From, q.Filter)
	if err != nil {
		return Statement{}, err
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (grouping_id, item_id, position) SELECT CAST(? AS BIGINT), %s.%s, %s FROM %s WHERE %s ON CONFLICT (grouping_id, item_id) DO NOTHING",
		table, q.From, queryir.IDField, positionSQL(q.From, position), q.From, filterSQL)

	args := make([]any, 0, len(filterArgs)+1)
	args = append(args, groupingID)
	args = append(args, filterArgs...)

	return c.finish(sql, args), nil
}

// idQuery compiles the bare id projection of q without ORDER BY.
func (c *Compiler) idQuery(q queryir.Select) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, res.Err()
	}

	filterSQL, args, err := c.predicate(q.From, q.Filter)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s.%s FROM %s WHERE %s", q.From, queryir.IDField, q.From, filterSQL)
	return sql, args, nil
}

func (c *Compiler) finish(sql string, args []any) Statement {
	if args == nil {
		args = []any{}
	}
	return Statement{SQL: c.Dialect.Rebind(sql), Args: args}
}

// predicate compiles p to a WHERE fragment with columns qualified by from.
// CRITICAL: Values NEVER interpolated - always ? placeholders.
func (c *Compiler) predicate(from string, p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil

	case queryir.Equals:
		param, err := toParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("equals %s: %w", pred.Field, err)
		}
		return fmt.Sprintf("%s.%s = ?", from, pred.Field), []any{param}, nil

	case queryir.Compare:
		param, err := toParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("compare %s: %w", pred.Field, err)
		}
		return fmt.Sprintf("%s.%s %s ?", from, pred.Field, pred.Op), []any{param}, nil

	case queryir.In:
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			param, err := toParam(v)
			if err != nil {
				return "", nil, fmt.Errorf("in %s[%d]: %w", pred.Field, i, err)
			}
			params[i] = param
		}
		sql, args := inList(from+"."+pred.Field, params)
		return sql, args, nil

	case queryir.IDSet:
		sql, args := c.idSet(from+"."+queryir.IDField, pred.IDs)
		return sql, args, nil

	case queryir.ColumnCompare:
		return fmt.Sprintf("%s.%s %s %s.%s", from, pred.Left, pred.Op, from, pred.Right), nil, nil

	case queryir.NotNull:
		return fmt.Sprintf("%s.%s IS NOT NULL", from, pred.Field), nil, nil

	case queryir.HasAttribute:
		values := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			values[i] = ir.NormalizeString(v)
		}
		inSQL, inArgs := inList("ia.value", values)
		sql := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s ia WHERE ia.item_id = %s.%s AND ia.code = ? AND %s)",
			attributesTable, from, queryir.IDField, inSQL)
		args := append([]any{ir.NormalizeString(pred.Code)}, inArgs...)
		return sql, args, nil

	case queryir.InCategoryTree:
		sql := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s ic JOIN %s c ON c.id = ic.category_id WHERE ic.item_id = %s.%s AND (c.id = ? OR c.path LIKE ((SELECT r.path FROM %s r WHERE r.id = ?) || '/%%')))",
			itemCategoriesTable, categoriesTable, from, queryir.IDField, categoriesTable)
		return sql, []any{pred.Root, pred.Root}, nil

	case queryir.And:
		return c.and(from, pred)

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// and compiles a conjunction. Nested conjunctions are parenthesized.
func (c *Compiler) and(from string, and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var args []any
	for _, child := range and.Predicates {
		sql, childArgs, err := c.predicate(from, child)
		if err != nil {
			return "", nil, err
		}
		if nested, ok := child.(queryir.And); ok && len(nested.Predicates) > 1 {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		args = append(args, childArgs...)
	}
	return strings.Join(parts, " AND "), args, nil
}

// positionSQL renders the position expression. Column values are clamped
// to a non-negative integer inside the store.
func positionSQL(from string, e queryir.Expr) string {
	switch expr := e.(type) {
	case queryir.Const:
		return strconv.FormatInt(expr.Value, 10)
	case queryir.Column:
		col := fmt.Sprintf("COALESCE(%s.%s, 0)", from, expr.Field)
		return fmt.Sprintf("CASE WHEN %s < 0 THEN 0 ELSE %s END", col, col)
	default:
		return "0"
	}
}

// inList renders "<column> IN (?, ?)". An empty list matches nothing.
func inList(column string, values []any) (string, []any) {
	if len(values) == 0 {
		return "1 = 0", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return fmt.Sprintf("%s IN (%s)", column, placeholders), values
}

// idSet matches column against ids bound as one parameter: a JSON array
// expanded by json_each on SQLite, a bigint[] literal on Postgres.
func (c *Compiler) idSet(column string, ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "1 = 0", nil
	}
	lb, rb, format := byte('['), byte(']'), "%s IN (SELECT value FROM json_each(?))"
	if c.Dialect == DialectPostgres {
		lb, rb, format = '{', '}', "%s = ANY(CAST(? AS BIGINT[]))"
	}
	buf := make([]byte, 0, 2+len(ids)*8)
	buf = append(buf, lb)
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, id, 10)
	}
	buf = append(buf, rb)
	return fmt.Sprintf(format, column), []any{string(buf)}
}

func checkTable(table string) error {
	if !queryir.ValidIdentifier(table) {
		return fmt.Errorf("invalid membership table name %q", table)
	}
	return nil
}

// toParam converts a scalar IRValue to a driver parameter.
// Strings are NFC normalized so they match normalized stored values.
func toParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return ir.NormalizeString(string(val)), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
