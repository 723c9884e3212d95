package database

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

const statementOK = "OK"

// SurrealDB is the Database backed by a single SurrealDB websocket session.
// The layer directory and account records live here; live presence never does.
type SurrealDB struct {
	cfg    Config
	client *surrealdb.DB
}

func NewSurrealDB(cfg Config) *SurrealDB {
	return &SurrealDB{cfg: cfg}
}

func (c Config) endpoint() string {
	return "ws://" + net.JoinHostPort(c.Host, c.Port)
}

// Connect dials the server, signs in as the configured root user and selects
// the namespace and database. A half-open session is closed before returning.
func (s *SurrealDB) Connect(ctx context.Context) error {
	client, err := surrealdb.FromEndpointURLString(ctx, s.cfg.endpoint())
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, s.cfg.endpoint(), err)
	}

	auth := &surrealdb.Auth{Username: s.cfg.User, Password: s.cfg.Password}
	if _, err = client.SignIn(ctx, auth); err == nil {
		err = client.Use(ctx, s.cfg.Namespace, s.cfg.Database)
	}
	if err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("%w: session setup: %v", ErrConnection, err)
	}

	s.client = client
	return nil
}

func (s *SurrealDB) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close(context.Background())
}

// Ping asks the server for its version; the health endpoint uses it.
func (s *SurrealDB) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrConnection
	}
	if _, err := s.client.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Query runs every statement in query and returns one {status, result} map per
// statement. The first failed statement aborts the whole call.
func (s *SurrealDB) Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	if s.client == nil {
		return nil, ErrConnection
	}

	statements, err := surrealdb.Query[interface{}](ctx, s.client, query, vars)
	if err != nil {
		return nil, classifyQueryError(err.Error())
	}
	if statements == nil {
		return nil, nil
	}

	out := make([]interface{}, len(*statements))
	for i, st := range *statements {
		if st.Status != statementOK {
			if st.Error == nil {
				return nil, ErrQuery
			}
			return nil, classifyQueryError(st.Error.Message)
		}
		out[i] = map[string]interface{}{"status": st.Status, "result": st.Result}
	}
	return out, nil
}

// QueryOne returns the first record produced by the first statement, or
// ErrNotFound when that statement produced nothing.
func (s *SurrealDB) QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error) {
	statements, err := s.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		return nil, ErrNotFound
	}
	return firstRecord(statements[0])
}

func (s *SurrealDB) Execute(ctx context.Context, query string, vars map[string]interface{}) error {
	_, err := s.Query(ctx, query, vars)
	return err
}

func firstRecord(statement interface{}) (interface{}, error) {
	st, ok := statement.(map[string]interface{})
	if !ok {
		return statement, nil
	}
	switch result := st["result"].(type) {
	case nil:
		return nil, ErrNotFound
	case []interface{}:
		if len(result) == 0 {
			return nil, ErrNotFound
		}
		return result[0], nil
	default:
		return result, nil
	}
}

// classifyQueryError turns SurrealDB error text into ErrDuplicate or ErrQuery.
// Unique index violations read "Database index `...` already contains ...".
func classifyQueryError(msg string) error {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"already contains", "already exists", "duplicate"} {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", ErrDuplicate, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrQuery, msg)
}
