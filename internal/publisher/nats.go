package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	sessionID   string
	logSubjects bool
	metrics     PublisherMetrics
	log         *zap.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, log *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("journey-replay"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{
		nc:          nc,
		prefix:      subjectToken(prefix),
		sessionID:   uuid.NewString(),
		logSubjects: logSubjects,
		metrics:     m,
		log:         log,
	}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// SessionID identifies this process's replay stream so clients can drop
// frames from a previous run.
func (p *NATSPublisher) SessionID() string { return p.sessionID }

// FrameMessage is one rendered position of one member.
type FrameMessage struct {
	SessionID    string    `json:"sessionId"`
	GroupID      string    `json:"groupId"`
	MemberID     string    `json:"memberId"`
	Name         string    `json:"name"`
	Timestamp    time.Time `json:"timestamp"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Heading      float64   `json:"heading"`
	Status       string    `json:"status"`
	StatusText   string    `json:"statusText,omitempty"`
	Progress     *float64  `json:"progress,omitempty"`
	EventType    string    `json:"eventType,omitempty"`
	EventMessage string    `json:"eventMessage,omitempty"`
	SpeedMps     float64   `json:"speedMps"`
}

// AlertMessage asks clients to centre on a member that stopped suddenly.
type AlertMessage struct {
	SessionID string    `json:"sessionId"`
	GroupID   string    `json:"groupId"`
	MemberID  string    `json:"memberId"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Message   string    `json:"message,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
}

func (p *NATSPublisher) PublishFrame(msg FrameMessage) error {
	msg.SessionID = p.sessionID
	return p.publish(FrameSubject(p.prefix, msg.GroupID, msg.MemberID), msg)
}

func (p *NATSPublisher) PublishAlert(msg AlertMessage) error {
	msg.SessionID = p.sessionID
	return p.publish(AlertSubject(p.prefix, msg.GroupID), msg)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug("nats publish", zap.String("subject", subject))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func FrameSubject(prefix, groupID, memberID string) string {
	return fmt.Sprintf("%s.%s.%s", subjectToken(prefix), subjectToken(groupID), subjectToken(memberID))
}

func AlertSubject(prefix, groupID string) string {
	return fmt.Sprintf("%s.%s.alerts", subjectToken(prefix), subjectToken(groupID))
}

func ControlSubject(prefix string) string {
	return subjectToken(prefix) + ".control"
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
