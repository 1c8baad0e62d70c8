package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

// Table names come from configuration, so they cannot be bound as query
// parameters; restrict them to a safe identifier shape instead.
var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGSink writes detection events to a Postgres table, one row per event
// with the variable parts stored as JSONB.
type PGSink struct {
	dsn   string
	table string
	db    *sql.DB
}

func NewPGSink(dsn, table string) (*PGSink, error) {
	if table == "" {
		table = "detection_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PGSink{dsn: dsn, table: table}, nil
}

func (s *PGSink) Start(ctx context.Context) error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	s.db = db
	return nil
}

func (s *PGSink) Enqueue(e ledger.Event) error {
	if s.db == nil {
		return fmt.Errorf("pg sink not started")
	}

	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("serialize details: %w", err)
	}
	var geo []byte
	if e.Geo != nil {
		if geo, err = json.Marshal(e.Geo); err != nil {
			return fmt.Errorf("serialize geo: %w", err)
		}
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, ts, method, severity, origin, user_agent, path, http_method, blocked, details, geo)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		s.table,
	)
	_, err = s.db.Exec(query,
		e.ID, e.Timestamp, string(e.Method), string(e.Severity),
		e.Origin, e.UserAgent, e.Path, e.HTTPMethod, e.Blocked,
		details, nullable(geo),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PGSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PGSink) Name() string { return "postgres" }

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
