package broadcast

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

func quietHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func drain(o *Observer) []string {
	var out []string
	for {
		select {
		case m, ok := <-o.Messages():
			if !ok {
				return out
			}
			out = append(out, string(m))
		default:
			return out
		}
	}
}

func TestThreeObserversSeeSameEvents(t *testing.T) {
	h := quietHub(8)
	obs := []*Observer{h.Register(), h.Register(), h.Register()}

	held := model.SeatUpdate(model.SeatState{SeatID: "2-5", Status: model.SeatHeld, OwnerID: "A"})
	sold := model.SeatUpdate(model.SeatState{SeatID: "2-5", Status: model.SeatSold, OwnerID: "A"})
	h.Publish(held)
	h.Publish(sold)

	want := []string{
		`{"type":"SEAT_UPDATE","payload":{"seatId":"2-5","status":"HELD","ownerId":"A"}}`,
		`{"type":"SEAT_UPDATE","payload":{"seatId":"2-5","status":"SOLD","ownerId":"A"}}`,
	}
	for _, o := range obs {
		assert.Equal(t, want, drain(o))
	}
}

func TestWireFormat(t *testing.T) {
	h := quietHub(4)
	o := h.Register()

	h.Publish(model.SeatUpdate(model.SeatState{SeatID: "0-0", Status: model.SeatAvailable}))
	h.Publish(model.Reset())

	msgs := drain(o)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"type":"SEAT_UPDATE","payload":{"seatId":"0-0","status":"AVAILABLE"}}`, msgs[0])
	assert.JSONEq(t, `{"type":"RESET"}`, msgs[1])

	var ev model.SeatEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &ev))
	assert.Nil(t, ev.Payload)
}

func TestSlowObserverIsDroppedWithoutAffectingOthers(t *testing.T) {
	h := quietHub(2)
	slow := h.Register()
	fast := h.Register()

	var got []string
	for i := 0; i < 5; i++ {
		h.Publish(model.SeatUpdate(model.SeatState{SeatID: "0-0", Status: model.SeatHeld, OwnerID: "A"}))
		got = append(got, drain(fast)...)
	}

	assert.Len(t, got, 5)
	assert.Equal(t, 1, h.Count())
	// The slow observer keeps what it had buffered, then sees a closed channel.
	assert.Len(t, drain(slow), 2)
	_, ok := <-slow.Messages()
	assert.False(t, ok)
}

func TestNoEventsBeforeRegistration(t *testing.T) {
	h := quietHub(4)
	h.Publish(model.Reset())
	o := h.Register()
	assert.Empty(t, drain(o))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := quietHub(4)
	o := h.Register()
	h.Unregister(o)
	h.Unregister(o)
	assert.Equal(t, 0, h.Count())

	h.Publish(model.Reset())
	_, ok := <-o.Messages()
	assert.False(t, ok)
}

func TestConcurrentRegisterAndPublish(t *testing.T) {
	h := quietHub(1024)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			o := h.Register()
			h.Unregister(o)
		}()
		go func() {
			defer wg.Done()
			h.Publish(model.Reset())
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count())
}

func TestClose(t *testing.T) {
	h := quietHub(4)
	a, b := h.Register(), h.Register()
	h.Close()
	assert.Equal(t, 0, h.Count())
	_, okA := <-a.Messages()
	_, okB := <-b.Messages()
	assert.False(t, okA)
	assert.False(t, okB)
}
