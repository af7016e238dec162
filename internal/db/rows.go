package db

import (
	"database/sql"
	"fmt"
	"time"

	"journey-replay/internal/fixtures"
	"journey-replay/internal/geo"
	"journey-replay/internal/model"
)

type groupRow struct {
	ID   string
	Name string
}

type memberRow struct {
	GroupID          string
	ID               string
	Name             string
	Avatar           string
	Lat, Lng         float64
	StatusType       string
	StatusText       string
	Heading          sql.NullFloat64
	Speed            sql.NullFloat64
	AssistanceRadius float64
	CurrentUser      bool
}

type journeyRow struct {
	ID               string
	MemberID         string
	HomeLat, HomeLng float64
	StartedAt        time.Time
	EndedAt          sql.NullTime
	ProgressOffset   float64
	ReplaySpeed      float64
}

type pointRow struct {
	JourneyID string
	Lat, Lng  float64
}

type eventRow struct {
	JourneyID string
	ID        string
	Type      string
	Timestamp time.Time
	Lat, Lng  sql.NullFloat64
	Label     string
	Message   string
}

// rowSet is the flat result of the fetch queries, already in display order.
type rowSet struct {
	groups   []groupRow
	members  []memberRow
	journeys []journeyRow
	points   []pointRow
	events   []eventRow
}

func (rs rowSet) assemble() (*fixtures.Dataset, error) {
	groups := make([]model.Group, 0, len(rs.groups))
	byGroup := make(map[string]int, len(rs.groups))
	for i, g := range rs.groups {
		groups = append(groups, model.Group{ID: g.ID, Name: g.Name})
		byGroup[g.ID] = i
	}
	for _, m := range rs.members {
		i, ok := byGroup[m.GroupID]
		if !ok {
			return nil, fmt.Errorf("member %q: unknown group %q", m.ID, m.GroupID)
		}
		if m.CurrentUser {
			groups[i].CurrentUser = m.member()
			continue
		}
		groups[i].Members = append(groups[i].Members, m.member())
	}

	journeys := make([]model.Journey, 0, len(rs.journeys))
	byJourney := make(map[string]int, len(rs.journeys))
	for _, j := range rs.journeys {
		mj := model.Journey{
			ID:             j.ID,
			MemberID:       j.MemberID,
			Home:           geo.LatLng{Lat: j.HomeLat, Lng: j.HomeLng},
			StartedAt:      j.StartedAt,
			ProgressOffset: j.ProgressOffset,
			ReplaySpeed:    j.ReplaySpeed,
		}
		if j.EndedAt.Valid {
			end := j.EndedAt.Time
			mj.EndedAt = &end
		}
		byJourney[j.ID] = len(journeys)
		journeys = append(journeys, mj)
	}
	for _, p := range rs.points {
		i, ok := byJourney[p.JourneyID]
		if !ok {
			return nil, fmt.Errorf("path point: unknown journey %q", p.JourneyID)
		}
		journeys[i].Path = append(journeys[i].Path, geo.LatLng{Lat: p.Lat, Lng: p.Lng})
	}
	for _, e := range rs.events {
		i, ok := byJourney[e.JourneyID]
		if !ok {
			return nil, fmt.Errorf("event %q: unknown journey %q", e.ID, e.JourneyID)
		}
		ev := model.JourneyEvent{
			ID:        e.ID,
			Type:      model.EventType(e.Type),
			Timestamp: e.Timestamp,
			Label:     e.Label,
			Message:   e.Message,
		}
		if e.Lat.Valid && e.Lng.Valid {
			ev.Position = &geo.LatLng{Lat: e.Lat.Float64, Lng: e.Lng.Float64}
		}
		journeys[i].Events = append(journeys[i].Events, ev)
	}
	for _, j := range journeys {
		if len(j.Path) == 0 {
			return nil, fmt.Errorf("journey %q has no path points", j.ID)
		}
	}
	return fixtures.New(groups, journeys)
}

func (m memberRow) member() model.Member {
	out := model.Member{
		ID:       m.ID,
		Name:     m.Name,
		Avatar:   m.Avatar,
		Position: geo.LatLng{Lat: m.Lat, Lng: m.Lng},
		Status: model.MemberStatus{
			Type: model.StatusType(m.StatusType),
			Text: m.StatusText,
		},
		AssistanceRadiusMeters: m.AssistanceRadius,
	}
	if m.Heading.Valid {
		h := m.Heading.Float64
		out.Status.Heading = &h
	}
	if m.Speed.Valid {
		s := m.Speed.Float64
		out.Status.Speed = &s
	}
	return out
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
