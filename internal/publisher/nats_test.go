package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "replay.school-mates.sm-1", FrameSubject("replay", "school-mates", "sm-1"))
	assert.Equal(t, "replay.work_friends.a_b", FrameSubject("replay", "work friends", "a.b"))
	assert.Equal(t, "replay._._", FrameSubject("replay", "", " "))
	assert.Equal(t, "replay.school-mates.alerts", AlertSubject("replay", "school-mates"))
	assert.Equal(t, "demo_eu.control", ControlSubject("demo.eu"))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "a_b_c_d", subjectToken(" a>b*c/d "))
	assert.Equal(t, "_", subjectToken("   "))
}

func TestFrameMessageJSON(t *testing.T) {
	p := 0.25
	msg := FrameMessage{
		GroupID:   "g",
		MemberID:  "m",
		Timestamp: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Lat:       17.45,
		Lng:       78.39,
		Heading:   90,
		Status:    "moving",
		Progress:  &p,
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "m", fields["memberId"])
	assert.Equal(t, 0.25, fields["progress"])
	assert.Equal(t, "2026-10-17T12:00:00Z", fields["timestamp"])
	assert.NotContains(t, fields, "eventType")
	assert.NotContains(t, fields, "statusText")
}

func TestDecodeControl(t *testing.T) {
	msg, err := DecodeControl([]byte(`{"action":"dismiss","memberId":"sm-4"}`))
	require.NoError(t, err)
	assert.Equal(t, ControlMessage{Action: ActionDismiss, MemberID: "sm-4"}, msg)

	msg, err = DecodeControl([]byte(`{"action":"switch_group","groupId":"work-friends"}`))
	require.NoError(t, err)
	assert.Equal(t, "work-friends", msg.GroupID)

	for _, bad := range []string{
		`{"action":"dismiss"}`,
		`{"action":"switch_group"}`,
		`{"action":"explode"}`,
		`not json`,
	} {
		_, err := DecodeControl([]byte(bad))
		assert.Error(t, err, bad)
	}
}
