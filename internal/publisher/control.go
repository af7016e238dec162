package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	ActionDismiss     = "dismiss"
	ActionSwitchGroup = "switch_group"
)

// ControlMessage is what map clients send back: dismiss a halted member's
// alert or switch the group being replayed.
type ControlMessage struct {
	Action   string `json:"action"`
	MemberID string `json:"memberId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

// DecodeControl parses and checks a control payload.
func DecodeControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode control message: %w", err)
	}
	switch msg.Action {
	case ActionDismiss:
		if msg.MemberID == "" {
			return msg, fmt.Errorf("dismiss requires memberId")
		}
	case ActionSwitchGroup:
		if msg.GroupID == "" {
			return msg, fmt.Errorf("switch_group requires groupId")
		}
	default:
		return msg, fmt.Errorf("unknown control action %q", msg.Action)
	}
	return msg, nil
}

// SubscribeControl delivers valid control messages to handle. Invalid ones are logged and dropped.
func (p *NATSPublisher) SubscribeControl(handle func(ControlMessage)) (*nats.Subscription, error) {
	subject := ControlSubject(p.prefix)
	sub, err := p.nc.Subscribe(subject, func(m *nats.Msg) {
		msg, err := DecodeControl(m.Data)
		if err != nil {
			p.log.Warn("dropping control message", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.log.Info("listening for control messages", zap.String("subject", subject))
	return sub, nil
}
