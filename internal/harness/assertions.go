package harness

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/store"
)

// validIdentifier matches the table and column names final_state may name.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	// RunID scopes final_state queries to one exported run.
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		if result.Run == nil && assertion.Type != AssertFinalState {
			errors = append(errors, fmt.Sprintf("assertion[%d]: no run result", i))
			continue
		}

		switch assertion.Type {
		case AssertSessionCount:
			err = assertSessionCount(result.Run, assertion)
		case AssertSession:
			err = assertSession(result.Run, assertion)
		case AssertSkipped:
			err = assertSkipped(result.Run, assertion)
		case AssertProgram:
			err = assertProgram(result.Run, assertion)
		case AssertProgramCount:
			err = assertProgramCount(result.Run, assertion)
		case AssertUnresolved:
			err = assertUnresolved(result.Run, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertSessionCount(run *pipeline.Result, assertion Assertion) error {
	count := len(run.Sessions())
	scope := "run"
	if assertion.Player != "" {
		scope = "player " + assertion.Player
		count = 0
		if p, ok := run.Player(assertion.Player); ok {
			count = len(p.Sessions)
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertSessionCount,
			Expected: fmt.Sprintf("%d sessions for %s", assertion.Count, scope),
			Actual:   fmt.Sprintf("%d sessions", count),
		}
	}
	return nil
}

// assertSession matches the listed fields against the session's JSON form.
func assertSession(run *pipeline.Result, assertion Assertion) error {
	p, ok := run.Player(assertion.Player)
	if !ok || assertion.Index >= len(p.Sessions) {
		n := 0
		if ok {
			n = len(p.Sessions)
		}
		return &AssertionError{
			Type:     AssertSession,
			Expected: fmt.Sprintf("session %d of player %s", assertion.Index, assertion.Player),
			Actual:   fmt.Sprintf("player has %d sessions", n),
		}
	}
	return matchJSON(AssertSession, p.Sessions[assertion.Index], assertion.Expect)
}

func assertSkipped(run *pipeline.Result, assertion Assertion) error {
	return matchJSON(AssertSkipped, run.Skipped, assertion.Expect)
}

// assertProgram checks the classification of the unique program the
// artifact was folded into.
func assertProgram(run *pipeline.Result, assertion Assertion) error {
	use, ok := findUse(run, assertion.Player, assertion.Artifact)
	if !ok {
		return &AssertionError{
			Type:     AssertProgram,
			Expected: fmt.Sprintf("artifact %s in a program timeline", assertion.Artifact),
			Actual:   "artifact not deployed or not resolved",
		}
	}
	if use.Default {
		return &AssertionError{
			Type:     AssertProgram,
			Expected: fmt.Sprintf("artifact %s to be a player program", assertion.Artifact),
			Actual:   "artifact is a stock program",
		}
	}
	pr, ok := run.Program(use.Hash)
	if !ok {
		return &AssertionError{
			Type:     AssertProgram,
			Expected: fmt.Sprintf("program %s", use.Hash),
			Actual:   "program not in run",
		}
	}

	if assertion.Broken != nil && *assertion.Broken != pr.Broken {
		return &AssertionError{
			Type:     AssertProgram,
			Expected: fmt.Sprintf("broken = %t for artifact %s", *assertion.Broken, assertion.Artifact),
			Actual:   fmt.Sprintf("broken = %t (%s)", pr.Broken, pr.Error),
		}
	}

	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		var want int
		switch v := assertion.Expect[key].(type) {
		case bool:
			if v {
				want = 1
			}
		case int:
			want = v
		default:
			return fmt.Errorf("program assertion: flag %q wants a bool or int, got %T", key, v)
		}
		if got := pr.Flags.Count(key); got != want {
			return &AssertionError{
				Type:     AssertProgram,
				Expected: fmt.Sprintf("flag %q = %d for artifact %s", key, want, assertion.Artifact),
				Actual:   fmt.Sprintf("flag %q = %d", key, got),
			}
		}
	}
	return nil
}

func findUse(run *pipeline.Result, player, artifact string) (pipeline.ProgramUse, bool) {
	for _, p := range run.Players {
		if player != "" && p.Player != player {
			continue
		}
		for _, u := range p.Programs {
			if u.ArtifactID == artifact {
				return u, true
			}
		}
	}
	return pipeline.ProgramUse{}, false
}

func assertProgramCount(run *pipeline.Result, assertion Assertion) error {
	if len(run.Programs) != assertion.Count {
		return &AssertionError{
			Type:     AssertProgramCount,
			Expected: fmt.Sprintf("%d unique programs", assertion.Count),
			Actual:   fmt.Sprintf("%d unique programs", len(run.Programs)),
		}
	}
	return nil
}

func assertUnresolved(run *pipeline.Result, assertion Assertion) error {
	if p, ok := run.Player(assertion.Player); ok {
		for _, u := range p.Unresolved {
			if u.ArtifactID != assertion.Artifact {
				continue
			}
			if assertion.Reason != "" && u.Reason != assertion.Reason {
				return &AssertionError{
					Type:     AssertUnresolved,
					Expected: fmt.Sprintf("artifact %s unresolved as %s", assertion.Artifact, assertion.Reason),
					Actual:   fmt.Sprintf("unresolved as %s", u.Reason),
				}
			}
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertUnresolved,
		Expected: fmt.Sprintf("artifact %s of player %s unresolved", assertion.Artifact, assertion.Player),
		Actual:   "artifact not in the unresolved list",
	}
}

// matchJSON compares expected fields against the JSON form of v. Expected
// values go through the same JSON round trip so numbers compare as float64.
func matchJSON(kind string, v any, expect map[string]any) error {
	actual, err := toJSONMap(v)
	if err != nil {
		return fmt.Errorf("%s assertion: %w", kind, err)
	}
	want, err := toJSONMap(expect)
	if err != nil {
		return fmt.Errorf("%s assertion: expect: %w", kind, err)
	}

	for _, key := range sortedKeys(want) {
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("fields: %v", sortedKeys(actual)),
			}
		}
		if !valuesEqual(got, want[key]) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q = %v", key, want[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
			}
		}
	}
	return nil
}

func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// valuesEqual compares two values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// assertFinalState checks one row of an export table against the expected
// columns. Rows of other runs in the database are never matched.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	query, args, err := exportRowQuery(assertion.Table, assertion.Where, actx.RunID)
	if err != nil {
		return err
	}

	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := actx.Store.Query(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "a readable " + assertion.Table + " table",
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	where := formatWhereClause(assertion.Where)
	row, err := scanRow(rows)
	if err != nil {
		return err
	}
	if row == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("a %s row where %s", assertion.Table, where),
			Actual:   "row not found",
		}
	}
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("one %s row where %s", assertion.Table, where),
			Actual:   "several rows match",
		}
	}

	for _, col := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[col]
		got, ok := row[col]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q in %s", col, assertion.Table),
				Actual:   fmt.Sprintf("columns %v", sortedKeys(row)),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Table, col, want),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Table, col, got),
			}
		}
	}
	return nil
}

// exportRowQuery selects the rows of table matching where, restricted to
// runID when it is set. The runs table is keyed by id, the others by run_id.
func exportRowQuery(table string, where map[string]any, runID string) (string, []any, error) {
	if table == "" {
		return "", nil, fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(table) {
		return "", nil, fmt.Errorf("invalid table name %q", table)
	}

	if runID != "" {
		scoped := make(map[string]any, len(where)+1)
		maps.Copy(scoped, where)
		if table == "runs" {
			scoped["id"] = runID
		} else {
			scoped["run_id"] = runID
		}
		where = scoped
	}

	cond, args, err := buildWhereClause(where)
	if err != nil {
		return "", nil, err
	}
	query := "SELECT * FROM " + table
	if cond != "" {
		query += " WHERE " + cond
	}
	return query, args, nil
}

// scanRow reads the next row into a column map. It returns nil at the end
// of the result set.
func scanRow(rows *sql.Rows) (map[string]any, error) {
	if !rows.Next() {
		return nil, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}
	return row, nil
}

// buildWhereClause turns where into "a = ? AND b = ?" over sorted column
// names, with the values as arguments.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(where)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, col := range keys {
		if !validIdentifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where", col)
		}
		conds[i] = col + " = ?"
		switch v := where[col].(type) {
		case string, int, int64, float64, bool:
			args[i] = v
		default:
			args[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(conds, " AND "), args, nil
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(any)"
	}
	parts := make([]string, 0, len(where))
	for _, col := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", col, where[col]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML scalar with a SQLite column value. TEXT
// may scan as []byte, numbers as int64 or float64 and booleans as 0 or 1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case int64:
			return exp == strconv.FormatInt(act, 10)
		}
		return false
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	}

	want, ok1 := numeric(expected)
	got, ok2 := numeric(actual)
	if ok1 && ok2 {
		return want == got
	}
	return reflect.DeepEqual(expected, actual)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
