package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"journey-replay/internal/fixtures"
)

//go:embed schema.sql
var schemaSQL string

// ErrNoJourneys is returned when the store holds no seeded dataset.
var ErrNoJourneys = errors.New("no journey dataset stored")

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// EnsureSchema creates the replay tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// FetchDataset loads every stored group and journey.
func FetchDataset(ctx context.Context, db *sql.DB) (*fixtures.Dataset, error) {
	var rs rowSet
	var err error
	if rs.groups, err = fetchGroups(ctx, db); err != nil {
		return nil, err
	}
	if len(rs.groups) == 0 {
		return nil, ErrNoJourneys
	}
	if rs.members, err = fetchMembers(ctx, db); err != nil {
		return nil, err
	}
	if rs.journeys, err = fetchJourneys(ctx, db); err != nil {
		return nil, err
	}
	if rs.points, err = fetchPoints(ctx, db); err != nil {
		return nil, err
	}
	if rs.events, err = fetchEvents(ctx, db); err != nil {
		return nil, err
	}
	return rs.assemble()
}

func fetchGroups(ctx context.Context, db *sql.DB) ([]groupRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM replay_groups ORDER BY ordinal, id`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	var out []groupRow
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func fetchMembers(ctx context.Context, db *sql.DB) ([]memberRow, error) {
	q := `SELECT group_id, id, name, avatar, lat, lng, status_type, status_text,
                 heading, speed, assistance_radius, is_current_user
          FROM replay_members ORDER BY group_id, ordinal, id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	var out []memberRow
	for rows.Next() {
		var m memberRow
		if err := rows.Scan(&m.GroupID, &m.ID, &m.Name, &m.Avatar, &m.Lat, &m.Lng, &m.StatusType, &m.StatusText,
			&m.Heading, &m.Speed, &m.AssistanceRadius, &m.CurrentUser); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func fetchJourneys(ctx context.Context, db *sql.DB) ([]journeyRow, error) {
	q := `SELECT id, member_id, home_lat, home_lng, started_at, ended_at, progress_offset, replay_speed
          FROM replay_journeys ORDER BY id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query journeys: %w", err)
	}
	defer rows.Close()
	var out []journeyRow
	for rows.Next() {
		var j journeyRow
		if err := rows.Scan(&j.ID, &j.MemberID, &j.HomeLat, &j.HomeLng, &j.StartedAt, &j.EndedAt,
			&j.ProgressOffset, &j.ReplaySpeed); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func fetchPoints(ctx context.Context, db *sql.DB) ([]pointRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT journey_id, lat, lng FROM replay_path_points ORDER BY journey_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query path points: %w", err)
	}
	defer rows.Close()
	var out []pointRow
	for rows.Next() {
		var p pointRow
		if err := rows.Scan(&p.JourneyID, &p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func fetchEvents(ctx context.Context, db *sql.DB) ([]eventRow, error) {
	q := `SELECT journey_id, id, type, ts, lat, lng, label, message
          FROM replay_events ORDER BY journey_id, seq`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []eventRow
	for rows.Next() {
		var e eventRow
		if err := rows.Scan(&e.JourneyID, &e.ID, &e.Type, &e.Timestamp, &e.Lat, &e.Lng, &e.Label, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
