// Package fixtures loads the demo groups and recorded journeys from YAML.
package fixtures

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"journey-replay/internal/geo"
	"journey-replay/internal/model"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	ErrUnknownGroup = errors.New("unknown group")
	ErrNoGroups     = errors.New("dataset has no groups")
)

type fileLatLng struct {
	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

func (p fileLatLng) latLng() geo.LatLng { return geo.LatLng{Lat: p.Lat, Lng: p.Lng} }

type fileStatus struct {
	Type    string   `yaml:"type" validate:"required,oneof=stationary moving anomaly_detected help_requested offline low_battery emergency sudden_halt"`
	Text    string   `yaml:"text"`
	Heading *float64 `yaml:"heading" validate:"omitempty,gte=-360,lte=360"`
	Speed   *float64 `yaml:"speed" validate:"omitempty,gte=0"`
}

type fileMember struct {
	ID                     string     `yaml:"id" validate:"required"`
	Name                   string     `yaml:"name" validate:"required"`
	Avatar                 string     `yaml:"avatar" validate:"omitempty,url"`
	Position               fileLatLng `yaml:"position"`
	Status                 fileStatus `yaml:"status"`
	AssistanceRadiusMeters float64    `yaml:"assistanceRadiusMeters" validate:"gte=0"`
}

type fileGroup struct {
	ID          string       `yaml:"id" validate:"required"`
	Name        string       `yaml:"name" validate:"required"`
	CurrentUser fileMember   `yaml:"currentUser"`
	Members     []fileMember `yaml:"members" validate:"dive"`
}

type fileEvent struct {
	ID         string      `yaml:"id"`
	Type       string      `yaml:"type" validate:"required,oneof=start status_change help_requested assistance_accepted anomaly message call reached_home"`
	MinutesAgo float64     `yaml:"minutesAgo" validate:"gte=0"`
	Position   *fileLatLng `yaml:"position"`
	Label      string      `yaml:"label" validate:"required"`
	Message    string      `yaml:"message"`
}

type fileJourney struct {
	ID                string       `yaml:"id" validate:"required"`
	MemberID          string       `yaml:"memberId" validate:"required"`
	StartedMinutesAgo float64      `yaml:"startedMinutesAgo" validate:"gte=0"`
	EndedMinutesAgo   *float64     `yaml:"endedMinutesAgo" validate:"omitempty,gte=0"`
	ProgressOffset    float64      `yaml:"progressOffset" validate:"gte=0,lt=1"`
	ReplaySpeed       float64      `yaml:"replaySpeed" validate:"gte=0"`
	Home              *fileLatLng  `yaml:"home"`
	Path              []fileLatLng `yaml:"path" validate:"min=1,dive"`
	Events            []fileEvent  `yaml:"events" validate:"dive"`
}

type file struct {
	Groups   []fileGroup   `yaml:"groups" validate:"dive"`
	Journeys []fileJourney `yaml:"journeys" validate:"dive"`
}

// Dataset is the read-only set of groups and journeys the replay runs over.
type Dataset struct {
	Groups   []model.Group
	Journeys []model.Journey

	byMember map[string]int
}

// Default loads the embedded demo dataset with journey times anchored at now.
func Default(now time.Time) (*Dataset, error) {
	return Load(bytes.NewReader(defaultYAML), now)
}

func LoadFile(path string, now time.Time) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return Load(f, now)
}

// Load decodes and validates a YAML dataset. Relative journey times
// ("minutes ago") are resolved against now.
func Load(r io.Reader, now time.Time) (*Dataset, error) {
	var raw file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if err := validator.New().Struct(raw); err != nil {
		return nil, fmt.Errorf("validate fixtures: %w", err)
	}
	return build(raw, now)
}

func build(raw file, now time.Time) (*Dataset, error) {
	if len(raw.Groups) == 0 {
		return nil, ErrNoGroups
	}
	members := make(map[string]bool)
	groupIDs := make(map[string]bool)
	ds := &Dataset{}
	for _, fg := range raw.Groups {
		if groupIDs[fg.ID] {
			return nil, fmt.Errorf("duplicate group id %q", fg.ID)
		}
		groupIDs[fg.ID] = true
		g := model.Group{ID: fg.ID, Name: fg.Name, CurrentUser: fg.CurrentUser.member()}
		for _, fm := range fg.Members {
			members[fm.ID] = true
			g.Members = append(g.Members, fm.member())
		}
		ds.Groups = append(ds.Groups, g)
	}

	minutesAgo := func(m float64) time.Time {
		return now.Add(-time.Duration(m * float64(time.Minute)))
	}
	for _, fj := range raw.Journeys {
		if !members[fj.MemberID] {
			return nil, fmt.Errorf("journey %q: unknown member %q", fj.ID, fj.MemberID)
		}
		j := model.Journey{
			ID:             fj.ID,
			MemberID:       fj.MemberID,
			StartedAt:      minutesAgo(fj.StartedMinutesAgo),
			ProgressOffset: fj.ProgressOffset,
			ReplaySpeed:    fj.ReplaySpeed,
		}
		if fj.EndedMinutesAgo != nil {
			end := minutesAgo(*fj.EndedMinutesAgo)
			j.EndedAt = &end
		}
		for _, p := range fj.Path {
			j.Path = append(j.Path, p.latLng())
		}
		j.Home = j.Path[len(j.Path)-1]
		if fj.Home != nil {
			j.Home = fj.Home.latLng()
		}
		seen := make(map[string]bool, len(fj.Events))
		for _, fe := range fj.Events {
			id := fe.ID
			if id == "" {
				id = uuid.NewString()
			}
			if seen[id] {
				return nil, fmt.Errorf("journey %q: duplicate event id %q", fj.ID, id)
			}
			seen[id] = true
			ev := model.JourneyEvent{
				ID:        id,
				Type:      model.EventType(fe.Type),
				Timestamp: minutesAgo(fe.MinutesAgo),
				Label:     fe.Label,
				Message:   fe.Message,
			}
			if fe.Position != nil {
				p := fe.Position.latLng()
				ev.Position = &p
			}
			j.Events = append(j.Events, ev)
		}
		ds.Journeys = append(ds.Journeys, j)
	}
	if err := ds.index(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (fm fileMember) member() model.Member {
	return model.Member{
		ID:       fm.ID,
		Name:     fm.Name,
		Avatar:   fm.Avatar,
		Position: fm.Position.latLng(),
		Status: model.MemberStatus{
			Type:    model.StatusType(fm.Status.Type),
			Text:    fm.Status.Text,
			Heading: fm.Status.Heading,
			Speed:   fm.Status.Speed,
		},
		AssistanceRadiusMeters: fm.AssistanceRadiusMeters,
	}
}

// New builds a dataset from already assembled groups and journeys, as the
// database loader does. A member may have at most one journey.
func New(groups []model.Group, journeys []model.Journey) (*Dataset, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	ds := &Dataset{Groups: groups, Journeys: journeys}
	if err := ds.index(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (d *Dataset) index() error {
	d.byMember = make(map[string]int, len(d.Journeys))
	for i, j := range d.Journeys {
		if _, dup := d.byMember[j.MemberID]; dup {
			return fmt.Errorf("member %q has more than one journey", j.MemberID)
		}
		d.byMember[j.MemberID] = i
	}
	return nil
}

// Group returns the group with id, or the first group when id is empty.
func (d *Dataset) Group(id string) (model.Group, error) {
	if id == "" {
		return d.Groups[0], nil
	}
	for _, g := range d.Groups {
		if g.ID == id {
			return g, nil
		}
	}
	return model.Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, id)
}

func (d *Dataset) JourneyFor(memberID string) (model.Journey, bool) {
	i, ok := d.byMember[memberID]
	if !ok {
		return model.Journey{}, false
	}
	return d.Journeys[i], true
}
