package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Logger defines the logging interface used by the Registry and Reaper.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the authoritative in-memory view of device presence,
// backed by a write-through Repository.
//
// Devices self-register: ApplyStatus and Heartbeat create entries on
// first contact. Mutations are serialised per store; concurrent updates
// to the same device resolve by arrival order (last write wins).
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	cache  map[string]*Device
	mu     sync.RWMutex
	clock  clockwork.Clock
	logger Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		clock:  clockwork.NewRealClock(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the wall clock. For tests.
func (r *Registry) SetClock(clock clockwork.Clock) {
	r.clock = clock
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might exist but not be cached yet)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = device.DeepCopy()
	r.mu.Unlock()

	return device, nil
}

// List retrieves all known devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// ListOnline retrieves all devices currently marked online.
func (r *Registry) ListOnline() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []Device
	for _, d := range r.cache {
		if d.Status == StatusOnline {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices
}

// ApplyStatus applies a device status report, creating the device on first
// contact (implicit registration). Any report also counts as liveness, so
// the heartbeat timestamp is refreshed.
//
// The merged device is returned as a deep copy.
func (r *Registry) ApplyStatus(ctx context.Context, id string, update StatusUpdate) (*Device, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if !update.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}

	now := r.clock.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.cache[id]
	if !exists {
		d = &Device{
			ID:        id,
			Type:      "target",
			CreatedAt: now,
		}
	}

	d.Status = update.Status
	if update.DeviceName != "" {
		d.Name = update.DeviceName
	}
	if update.FirmwareVersion != "" {
		d.FirmwareVersion = update.FirmwareVersion
	}
	if update.IPAddress != "" {
		d.IPAddress = update.IPAddress
	}
	if update.Location != "" {
		d.Location = update.Location
	}
	d.LastHeartbeat = &now
	d.UpdatedAt = now

	if err := r.repo.Upsert(ctx, d); err != nil {
		return nil, err
	}
	r.cache[id] = d

	if !exists {
		r.logger.Info("device registered", "id", id, "status", d.Status)
	}
	return d.DeepCopy(), nil
}

// Heartbeat records a liveness signal from a device, forcing it online.
// Unknown devices are implicitly registered.
func (r *Registry) Heartbeat(ctx context.Context, id string) (*Device, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	now := r.clock.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.cache[id]
	if !exists {
		d = &Device{
			ID:        id,
			Type:      "target",
			CreatedAt: now,
		}
		d.Status = StatusOnline
		d.LastHeartbeat = &now
		d.UpdatedAt = now

		if err := r.repo.Upsert(ctx, d); err != nil {
			return nil, err
		}
		r.cache[id] = d
		r.logger.Info("device registered", "id", id, "status", d.Status)
		return d.DeepCopy(), nil
	}

	if err := r.repo.UpdateHeartbeat(ctx, id, now); err != nil {
		return nil, err
	}

	d.Status = StatusOnline
	d.LastHeartbeat = &now
	d.UpdatedAt = now
	return d.DeepCopy(), nil
}

// MarkOffline transitions a device to offline.
//
// Returns true when this call performed the transition, false when the
// device was already offline. The reaper relies on this to emit at most
// one offline notification per silence period.
func (r *Registry) MarkOffline(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.cache[id]
	if !ok {
		return false, ErrDeviceNotFound
	}
	if d.Status == StatusOffline {
		return false, nil
	}

	if err := r.repo.UpdateStatus(ctx, id, StatusOffline); err != nil {
		return false, err
	}

	d.Status = StatusOffline
	d.UpdatedAt = r.clock.Now().UTC()

	r.logger.Info("device marked offline", "id", id)
	return true, nil
}

// StaleOnline returns deep copies of online devices whose last heartbeat
// is older than the cutoff. Devices that have never reported are skipped;
// they only become reapable once they have been heard at least once.
func (r *Registry) StaleOnline(cutoff time.Time) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []Device
	for _, d := range r.cache {
		if d.Status != StatusOnline || d.LastHeartbeat == nil {
			continue
		}
		if d.LastHeartbeat.Before(cutoff) {
			stale = append(stale, *d.DeepCopy())
		}
	}
	return stale
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
