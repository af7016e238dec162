package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"journey-replay/internal/fixtures"
	"journey-replay/internal/geo"
	"journey-replay/internal/model"
)

// Import describes one SeedDataset run.
type Import struct {
	Source   string
	Groups   int
	Journeys int
	SeededAt time.Time
}

// SeedDataset upserts every group, member and journey of ds in one transaction
// and records the run in replay_imports. Journey paths and events are replaced.
func SeedDataset(ctx context.Context, db *sql.DB, ds *fixtures.Dataset, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("seed source is required")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for gi, g := range ds.Groups {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO replay_groups (id, name, ordinal) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, ordinal = EXCLUDED.ordinal`,
			g.ID, g.Name, gi); err != nil {
			return fmt.Errorf("upsert group %q: %w", g.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM replay_members WHERE group_id = $1`, g.ID); err != nil {
			return fmt.Errorf("clear members of %q: %w", g.ID, err)
		}
		rows := make([]memberRow, 0, len(g.Members)+1)
		if g.CurrentUser.ID != "" {
			rows = append(rows, toMemberRow(g.ID, g.CurrentUser, true))
		}
		for _, m := range g.Members {
			rows = append(rows, toMemberRow(g.ID, m, false))
		}
		for mi, m := range rows {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO replay_members (group_id, id, name, avatar, lat, lng, status_type, status_text,
                            heading, speed, assistance_radius, is_current_user, ordinal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				m.GroupID, m.ID, m.Name, m.Avatar, m.Lat, m.Lng, m.StatusType, m.StatusText,
				m.Heading, m.Speed, m.AssistanceRadius, m.CurrentUser, mi); err != nil {
				return fmt.Errorf("insert member %q: %w", m.ID, err)
			}
		}
	}

	for _, j := range ds.Journeys {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO replay_journeys (id, member_id, home_lat, home_lng, started_at, ended_at, progress_offset, replay_speed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET member_id = EXCLUDED.member_id, home_lat = EXCLUDED.home_lat,
  home_lng = EXCLUDED.home_lng, started_at = EXCLUDED.started_at, ended_at = EXCLUDED.ended_at,
  progress_offset = EXCLUDED.progress_offset, replay_speed = EXCLUDED.replay_speed`,
			j.ID, j.MemberID, j.Home.Lat, j.Home.Lng, j.StartedAt, nullTime(j.EndedAt), j.ProgressOffset, j.Speed()); err != nil {
			return fmt.Errorf("upsert journey %q: %w", j.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM replay_path_points WHERE journey_id = $1`, j.ID); err != nil {
			return fmt.Errorf("clear path of %q: %w", j.ID, err)
		}
		for seq, p := range j.Path {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO replay_path_points (journey_id, seq, lat, lng) VALUES ($1, $2, $3, $4)`,
				j.ID, seq, p.Lat, p.Lng); err != nil {
				return fmt.Errorf("insert path point %d of %q: %w", seq, j.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM replay_events WHERE journey_id = $1`, j.ID); err != nil {
			return fmt.Errorf("clear events of %q: %w", j.ID, err)
		}
		for seq, e := range j.Events {
			lat, lng := eventPosition(e.Position)
			if _, err := tx.ExecContext(ctx, `
INSERT INTO replay_events (journey_id, id, seq, type, ts, lat, lng, label, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				j.ID, e.ID, seq, string(e.Type), e.Timestamp, lat, lng, e.Label, e.Message); err != nil {
				return fmt.Errorf("insert event %q of %q: %w", e.ID, j.ID, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO replay_imports (source, group_count, journey_count) VALUES ($1, $2, $3)`,
		source, len(ds.Groups), len(ds.Journeys)); err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// LatestImport returns the most recent seed run, or ErrNoJourneys when the
// store was never seeded.
func LatestImport(ctx context.Context, db *sql.DB) (Import, error) {
	q := `
SELECT source, group_count, journey_count, seeded_at
FROM replay_imports
ORDER BY seeded_at DESC, id DESC
LIMIT 1`
	var imp Import
	if err := db.QueryRowContext(ctx, q).Scan(&imp.Source, &imp.Groups, &imp.Journeys, &imp.SeededAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, ErrNoJourneys
		}
		return Import{}, err
	}
	return imp, nil
}

func toMemberRow(groupID string, m model.Member, current bool) memberRow {
	return memberRow{
		GroupID:          groupID,
		ID:               m.ID,
		Name:             m.Name,
		Avatar:           m.Avatar,
		Lat:              m.Position.Lat,
		Lng:              m.Position.Lng,
		StatusType:       string(m.Status.Type),
		StatusText:       m.Status.Text,
		Heading:          nullFloat(m.Status.Heading),
		Speed:            nullFloat(m.Status.Speed),
		AssistanceRadius: m.AssistanceRadiusMeters,
		CurrentUser:      current,
	}
}

func eventPosition(p *geo.LatLng) (lat, lng sql.NullFloat64) {
	if p == nil {
		return
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lng, Valid: true}
}
