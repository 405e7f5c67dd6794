package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/domain"
	"autodrive/internal/logging"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingSink struct {
	mu     sync.Mutex
	points map[string]domain.Point
	times  map[string]time.Time
}

func newRecordingSink() *recordingSink {
	return &recordingSink{points: map[string]domain.Point{}, times: map[string]time.Time{}}
}

func (s *recordingSink) UpdateLocation(ctx context.Context, vehicleID string, p domain.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[vehicleID] = p
	s.times[vehicleID] = at
	return nil
}

func TestParsePosition(t *testing.T) {
	t.Parallel()

	id, report, err := ParsePosition("vehicles/veh-7/position", []byte(`{"lat":25.03,"lng":121.56,"ts":1700000000}`))
	require.NoError(t, err)

	assert.Equal(t, "veh-7", id)
	assert.Equal(t, 25.03, report.Lat)
	assert.Equal(t, int64(1700000000), report.Timestamp)
}

func TestParsePosition_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		topic   string
		payload string
	}{
		"wrong topic":  {"drivers/veh-7/position", `{"lat":1,"lng":1}`},
		"empty id":     {"vehicles//position", `{"lat":1,"lng":1}`},
		"bad json":     {"vehicles/veh-7/position", `{"lat":`},
		"out of range": {"vehicles/veh-7/position", `{"lat":123,"lng":1}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParsePosition(tc.topic, []byte(tc.payload))
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestHandleMessage_StoresPosition(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	s := NewSubscriber(nil, "vehicles/+/position", sink, logging.Discard())
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.HandleMessage(nil, fakeMessage{topic: "vehicles/veh-1/position", payload: []byte(`{"lat":25.04,"lng":121.52}`)})
	s.HandleMessage(nil, fakeMessage{topic: "vehicles/veh-2/position", payload: []byte(`garbage`)})

	assert.Equal(t, domain.Point{Lat: 25.04, Lng: 121.52}, sink.points["veh-1"])
	assert.Equal(t, fixed, sink.times["veh-1"])
	assert.NotContains(t, sink.points, "veh-2")
}
