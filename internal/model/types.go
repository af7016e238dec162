package model

import (
	"time"

	"journey-replay/internal/geo"
)

type StatusType string

const (
	StatusStationary      StatusType = "stationary"
	StatusMoving          StatusType = "moving"
	StatusAnomalyDetected StatusType = "anomaly_detected"
	StatusHelpRequested   StatusType = "help_requested"
	StatusOffline         StatusType = "offline"
	StatusLowBattery      StatusType = "low_battery"
	StatusEmergency       StatusType = "emergency"
	StatusSuddenHalt      StatusType = "sudden_halt"
)

type MemberStatus struct {
	Type    StatusType
	Text    string
	Heading *float64 // only meaningful for moving members
	Speed   *float64
}

type Member struct {
	ID       string
	Name     string
	Avatar   string
	Position geo.LatLng
	Status   MemberStatus
	// AssistanceRadiusMeters is set for the current user only.
	AssistanceRadiusMeters float64
}

// StaticHeading returns the heading a non-replayed member should face, or nil
// when the member is not moving.
func (m Member) StaticHeading() *float64 {
	if m.Status.Type != StatusMoving {
		return nil
	}
	return m.Status.Heading
}

type Group struct {
	ID          string
	Name        string
	CurrentUser Member
	Members     []Member
}

type EventType string

const (
	EventStart              EventType = "start"
	EventStatusChange       EventType = "status_change"
	EventHelpRequested      EventType = "help_requested"
	EventAssistanceAccepted EventType = "assistance_accepted"
	EventAnomaly            EventType = "anomaly"
	EventMessage            EventType = "message"
	EventCall               EventType = "call"
	EventReachedHome        EventType = "reached_home"
)

type JourneyEvent struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Position  *geo.LatLng
	Label     string
	Message   string
}

// DefaultJourneyWindow is the replay window used when a journey has no end time.
const DefaultJourneyWindow = time.Hour

type Journey struct {
	ID        string
	MemberID  string
	Path      []geo.LatLng // traversal order, start to home
	Home      geo.LatLng
	StartedAt time.Time
	EndedAt   *time.Time
	Events    []JourneyEvent

	ProgressOffset float64 // phase shift in [0,1)
	ReplaySpeed    float64 // multiplier, 0 means 1
}

// End returns the wall-clock end of the journey's replay window.
func (j Journey) End() time.Time {
	if j.EndedAt != nil {
		return *j.EndedAt
	}
	return j.StartedAt.Add(DefaultJourneyWindow)
}

// Speed returns the replay speed with the default applied.
func (j Journey) Speed() float64 {
	if j.ReplaySpeed <= 0 {
		return 1
	}
	return j.ReplaySpeed
}
