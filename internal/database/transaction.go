package database

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

const (
	txBegin  = "BEGIN TRANSACTION;\n"
	txCommit = "COMMIT TRANSACTION;"
)

// TxBuilder assembles one SurrealQL transaction out of independent statements.
// Each statement's variables get a unique prefix, so two statements binding
// $id end up as $v1_id and $v2_id in the merged request.
type TxBuilder struct {
	statements []string
	vars       map[string]interface{}
	seq        int
}

func NewTxBuilder() *TxBuilder {
	return &TxBuilder{vars: map[string]interface{}{}}
}

// Add appends query and returns how each of its variable names was renamed.
func (tb *TxBuilder) Add(query string, vars map[string]interface{}) map[string]string {
	renamed := make(map[string]string, len(vars))
	for _, name := range longestFirst(vars) {
		tb.seq++
		prefixed := "v" + strconv.Itoa(tb.seq) + "_" + name
		query = strings.ReplaceAll(query, "$"+name, "$"+prefixed)
		tb.vars[prefixed] = vars[name]
		renamed[name] = prefixed
	}
	tb.statements = append(tb.statements, terminate(query))
	return renamed
}

func (tb *TxBuilder) Len() int { return len(tb.statements) }

// Build returns the wrapped query and merged variables, or "" and nil when
// nothing was added.
func (tb *TxBuilder) Build() (string, map[string]interface{}) {
	if len(tb.statements) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(txBegin)
	for _, stmt := range tb.statements {
		sb.WriteString(stmt)
		sb.WriteByte('\n')
	}
	sb.WriteString(txCommit)
	return sb.String(), tb.vars
}

// ExecuteTransaction sends the built transaction as a single request.
// An empty builder sends nothing.
func ExecuteTransaction(ctx context.Context, db Database, tb *TxBuilder) ([]interface{}, error) {
	query, vars := tb.Build()
	if query == "" {
		return nil, nil
	}
	return db.Query(ctx, query, vars)
}

// longestFirst orders names so that $layer_id is rewritten before $layer.
func longestFirst(vars map[string]interface{}) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return names
}

func terminate(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if strings.HasSuffix(stmt, ";") {
		return stmt
	}
	return stmt + ";"
}

// AtomicBatch is a chainable TxBuilder for repository writes that must land
// together, such as moving the default flag from one layer to another.
type AtomicBatch struct {
	tx *TxBuilder
}

func NewAtomicBatch() *AtomicBatch {
	return &AtomicBatch{tx: NewTxBuilder()}
}

func (ab *AtomicBatch) Add(query string, vars map[string]interface{}) *AtomicBatch {
	ab.tx.Add(query, vars)
	return ab
}

// Execute returns the per-statement results of the transaction.
func (ab *AtomicBatch) Execute(ctx context.Context, db Database) ([]interface{}, error) {
	return ExecuteTransaction(ctx, db, ab.tx)
}

func (ab *AtomicBatch) Len() int { return ab.tx.Len() }
