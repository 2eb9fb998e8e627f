package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

func testHub(t *testing.T) *Hub {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return NewHub(log)
}

func testClient(h *Hub, principal string) *Client {
	return &Client{hub: h, send: make(chan []byte, clientSendBuffer), log: h.log, Principal: principal}
}

func decode(t *testing.T, raw []byte) Event {
	t.Helper()

	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	return evt
}

func TestHub_BroadcastsBlockSealed(t *testing.T) {
	h := testHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	defer cancel()

	c := testClient(h, "auditor")
	h.Register(c)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.BlockSealed(&models.Block{BlockNumber: 7, BlockHash: "00ab", Events: make([]models.AuditEvent, 3)})

	select {
	case raw := <-c.send:
		evt := decode(t, raw)
		if evt.Type != EventBlockSealed || evt.ID != 1 {
			t.Fatalf("event = %s/%d, want %s/1", evt.Type, evt.ID, EventBlockSealed)
		}

		var header models.BlockHeader
		if err := json.Unmarshal(evt.Data, &header); err != nil {
			t.Fatalf("decoding header: %v", err)
		}
		if header.BlockNumber != 7 || header.EventCount != 3 {
			t.Errorf("header = %+v", header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestHub_Replay(t *testing.T) {
	h := testHub(t)

	for i := range 3 {
		h.Publish(EventBlockSealed, map[string]int{"n": i})
	}

	c := testClient(h, "auditor")
	if !h.ReplayEvents(c, 1) {
		t.Fatal("replay from 1 should succeed")
	}

	if got := len(c.send); got != 2 {
		t.Fatalf("replayed %d events, want 2", got)
	}
	if evt := decode(t, <-c.send); evt.ID != 2 {
		t.Errorf("first replayed id = %d, want 2", evt.ID)
	}
}

func TestHub_ReplayTooOld(t *testing.T) {
	h := testHub(t)
	h.buffer = NewEventBuffer(2, time.Hour)

	for i := range 5 {
		h.Publish(EventBlockSealed, i)
	}

	if h.ReplayEvents(testClient(h, "p"), 1) {
		t.Fatal("replay from an evicted id should report a gap")
	}
	if !h.ReplayEvents(testClient(h, "p"), 3) {
		t.Fatal("replay from the id just before the oldest buffered should succeed")
	}
}

func TestHub_PerPrincipalLimit(t *testing.T) {
	h := testHub(t)

	for range maxPerPrincipal {
		h.add(testClient(h, "same"))
	}

	extra := testClient(h, "same")
	h.add(extra)

	if _, ok := <-extra.send; ok {
		t.Fatal("client over the per-principal limit should be closed")
	}
	if len(h.clients) != maxPerPrincipal {
		t.Errorf("clients = %d, want %d", len(h.clients), maxPerPrincipal)
	}
}

func TestEventBuffer_EvictsByAge(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	eb := NewEventBuffer(10, time.Minute)
	eb.now = func() time.Time { return now }

	eb.Append(&Event{ID: 1, Time: now.Add(-2 * time.Minute)})
	eb.Append(&Event{ID: 2, Time: now})

	if got := eb.OldestID(); got != 2 {
		t.Errorf("oldest = %d, want 2", got)
	}
	if got := eb.Since(0); len(got) != 1 {
		t.Errorf("since(0) = %d events, want 1", len(got))
	}
	if got := eb.Since(2); got != nil {
		t.Errorf("since(2) = %v, want nil", got)
	}
}
