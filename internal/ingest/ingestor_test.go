package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arenalink/arena-core/internal/device"
	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
)

// fakeRepo is an in-memory device.Repository.
type fakeRepo struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{devices: make(map[string]*device.Device)}
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (r *fakeRepo) List(_ context.Context) ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (r *fakeRepo) Upsert(_ context.Context, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID] = d.DeepCopy()
	return nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id string, status device.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.Status = status
	return nil
}

func (r *fakeRepo) UpdateHeartbeat(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.Status = device.StatusOnline
	d.LastHeartbeat = &at
	return nil
}

// fakeHitStore records appended hits.
type fakeHitStore struct {
	mu   sync.Mutex
	hits []device.HitEvent
}

func (s *fakeHitStore) AppendHit(_ context.Context, hit *device.HitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, *hit)
	return nil
}

func (s *fakeHitStore) ListHitsByMatch(_ context.Context, matchID string) ([]device.HitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []device.HitEvent
	for _, h := range s.hits {
		if h.MatchID == matchID {
			out = append(out, h)
		}
	}
	return out, nil
}

// fakeLogStore records device log rows.
type fakeLogStore struct {
	mu   sync.Mutex
	rows []device.Log
}

func (s *fakeLogStore) AppendLog(_ context.Context, entry *device.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *entry)
	return nil
}

func (s *fakeLogStore) ListLogsByDevice(_ context.Context, deviceID string, _ int) ([]device.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []device.Log
	for _, row := range s.rows {
		if row.DeviceID == deviceID {
			out = append(out, row)
		}
	}
	return out, nil
}

// fakeRecorder records score credits.
type fakeRecorder struct {
	mu      sync.Mutex
	credits []credit
}

type credit struct {
	matchID  string
	playerID string
	points   int
}

func (f *fakeRecorder) RecordScore(matchID, playerID, _ string, points int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, credit{matchID: matchID, playerID: playerID, points: points})
	return false, nil
}

// fakeBroadcaster records room broadcasts.
type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []broadcast
}

type broadcast struct {
	room string
	msg  any
}

func (f *fakeBroadcaster) Broadcast(room string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, broadcast{room: room, msg: v})
}

// fakeSubscriber records subscriptions so handlers can be invoked directly.
type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	qos      byte
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	f.qos = qos
	return nil
}

type testIngest struct {
	ingestor *Ingestor
	registry *device.Registry
	hits     *fakeHitStore
	logs     *fakeLogStore
	recorder *fakeRecorder
	hub      *fakeBroadcaster
}

func newTestIngest(t *testing.T) *testIngest {
	t.Helper()
	registry := device.NewRegistry(newFakeRepo())
	hits := &fakeHitStore{}
	logs := &fakeLogStore{}
	recorder := &fakeRecorder{}
	hub := &fakeBroadcaster{}
	return &testIngest{
		ingestor: New(registry, hits, logs, recorder, hub),
		registry: registry,
		hits:     hits,
		logs:     logs,
		recorder: recorder,
		hub:      hub,
	}
}

func TestStart_SubscribesAllActionChannels(t *testing.T) {
	ti := newTestIngest(t)
	sub := &fakeSubscriber{}

	if err := ti.ingestor.Start(sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, topic := range []string{
		"arena/devices/+/status",
		"arena/devices/+/heartbeat",
		"arena/devices/+/hit",
	} {
		if sub.handlers[topic] == nil {
			t.Errorf("no subscription for %q", topic)
		}
	}
	if sub.qos != 1 {
		t.Errorf("qos = %d, want 1", sub.qos)
	}
}

func TestHandleStatus_ImplicitRegistration(t *testing.T) {
	ti := newTestIngest(t)

	payload := []byte(`{"status":"online","device_name":"Lane 7","firmware_version":"2.4.1","ip_address":"10.0.0.7"}`)
	if err := ti.ingestor.HandleStatus("arena/devices/target-07/status", payload); err != nil {
		t.Fatalf("HandleStatus() error = %v", err)
	}

	d, err := ti.registry.Get(context.Background(), "target-07")
	if err != nil {
		t.Fatalf("device not registered: %v", err)
	}
	if d.Status != device.StatusOnline || d.Name != "Lane 7" || d.FirmwareVersion != "2.4.1" {
		t.Errorf("device = %+v", d)
	}

	// The raw message also reached the device feed.
	ti.hub.mu.Lock()
	defer ti.hub.mu.Unlock()
	if len(ti.hub.msgs) != 1 || ti.hub.msgs[0].room != "device:target-07" {
		t.Fatalf("broadcasts = %+v", ti.hub.msgs)
	}
	dm := ti.hub.msgs[0].msg.(DeviceMessage)
	if dm.Type != "device_message" || dm.Action != "status" || dm.DeviceID != "target-07" {
		t.Errorf("device_message = %+v", dm)
	}
}

func TestHandleStatus_EmptyStatusMeansOnline(t *testing.T) {
	ti := newTestIngest(t)

	if err := ti.ingestor.HandleStatus("arena/devices/target-07/status", []byte(`{"device_name":"Lane 7"}`)); err != nil {
		t.Fatalf("HandleStatus() error = %v", err)
	}

	d, err := ti.registry.Get(context.Background(), "target-07")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Status != device.StatusOnline {
		t.Errorf("status = %q, want online", d.Status)
	}
}

func TestHandleStatus_MalformedPayloadLoggedAndDropped(t *testing.T) {
	ti := newTestIngest(t)

	cases := [][]byte{
		[]byte(`{broken`),
		[]byte(`{"status":"sleeping"}`),
	}
	for _, payload := range cases {
		if err := ti.ingestor.HandleStatus("arena/devices/target-07/status", payload); err != nil {
			t.Fatalf("HandleStatus(%s) error = %v", payload, err)
		}
	}

	rows, err := ti.logs.ListLogsByDevice(context.Background(), "target-07", 10)
	if err != nil {
		t.Fatalf("ListLogsByDevice() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("log rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Level != device.LogLevelError || row.Event != "malformed_payload" {
			t.Errorf("log row = %+v", row)
		}
		if !strings.Contains(row.Detail, "arena/devices/target-07/status") {
			t.Errorf("detail missing topic: %q", row.Detail)
		}
	}

	// Nothing registered, nothing broadcast.
	if _, err := ti.registry.Get(context.Background(), "target-07"); err == nil {
		t.Error("malformed status registered a device")
	}
}

func TestHandleHeartbeat_ForcesOnline(t *testing.T) {
	ti := newTestIngest(t)
	ctx := context.Background()

	if _, err := ti.registry.ApplyStatus(ctx, "target-07", device.StatusUpdate{Status: device.StatusError}); err != nil {
		t.Fatalf("ApplyStatus() error = %v", err)
	}

	if err := ti.ingestor.HandleHeartbeat("arena/devices/target-07/heartbeat", nil); err != nil {
		t.Fatalf("HandleHeartbeat() error = %v", err)
	}

	d, err := ti.registry.Get(ctx, "target-07")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Status != device.StatusOnline {
		t.Errorf("status = %q after heartbeat, want online", d.Status)
	}
	if d.LastHeartbeat == nil {
		t.Error("heartbeat timestamp not recorded")
	}
}

func TestHandleHit_PersistsCreditsAndReemits(t *testing.T) {
	ti := newTestIngest(t)

	payload := []byte(`{"score":80,"game_id":"m1","player_id":"u1","hit_zone":"center"}`)
	if err := ti.ingestor.HandleHit("arena/devices/target-07/hit", payload); err != nil {
		t.Fatalf("HandleHit() error = %v", err)
	}

	hits, err := ti.hits.ListHitsByMatch(context.Background(), "m1")
	if err != nil {
		t.Fatalf("ListHitsByMatch() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("persisted hits = %d, want 1", len(hits))
	}
	h := hits[0]
	if h.DeviceID != "target-07" || h.Score != 80 || h.HitZone != "center" || h.ID == "" {
		t.Errorf("hit = %+v", h)
	}

	ti.recorder.mu.Lock()
	if len(ti.recorder.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(ti.recorder.credits))
	}
	c := ti.recorder.credits[0]
	ti.recorder.mu.Unlock()
	if c.matchID != "m1" || c.playerID != "u1" || c.points != 80 {
		t.Errorf("credit = %+v", c)
	}

	// A hit is also a liveness signal.
	d, err := ti.registry.Get(context.Background(), "target-07")
	if err != nil || d.Status != device.StatusOnline {
		t.Errorf("device after hit: %+v err=%v", d, err)
	}

	ti.hub.mu.Lock()
	defer ti.hub.mu.Unlock()
	last := ti.hub.msgs[len(ti.hub.msgs)-1]
	if dm := last.msg.(DeviceMessage); dm.Action != "hit" {
		t.Errorf("feed message = %+v", dm)
	}
}

func TestHandleHit_UnattributedFallsBackToDevice(t *testing.T) {
	ti := newTestIngest(t)

	if err := ti.ingestor.HandleHit("arena/devices/target-07/hit", []byte(`{"score":50,"game_id":"m1"}`)); err != nil {
		t.Fatalf("HandleHit() error = %v", err)
	}

	ti.recorder.mu.Lock()
	defer ti.recorder.mu.Unlock()
	if len(ti.recorder.credits) != 1 || ti.recorder.credits[0].playerID != "target-07" {
		t.Errorf("credits = %+v, want attribution to target-07", ti.recorder.credits)
	}
}

func TestHandleHit_NoMatchNoCredit(t *testing.T) {
	ti := newTestIngest(t)

	if err := ti.ingestor.HandleHit("arena/devices/target-07/hit", []byte(`{"score":50}`)); err != nil {
		t.Fatalf("HandleHit() error = %v", err)
	}

	ti.recorder.mu.Lock()
	credits := len(ti.recorder.credits)
	ti.recorder.mu.Unlock()
	if credits != 0 {
		t.Errorf("credits = %d for matchless hit, want 0", credits)
	}

	ti.hits.mu.Lock()
	defer ti.hits.mu.Unlock()
	if len(ti.hits.hits) != 1 {
		t.Errorf("matchless hit not persisted")
	}
}
