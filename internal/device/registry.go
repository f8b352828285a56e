package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging interface the registry needs. It is
// satisfied by the infrastructure logging package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type addressKey struct {
	coordinatorID int
	address       string
}

// Registry provides cached access to the device directory. Reads are
// served from an in-memory cache; writes go through the repository
// first and then refresh the cached entry.
//
// All returned devices are deep copies. Callers can mutate them freely
// without corrupting the cache.
type Registry struct {
	repo Repository
	log  Logger

	mu        sync.RWMutex
	cache     map[int]*Device
	byAddress map[addressKey]int
}

// NewRegistry creates a registry and loads the full device directory
// into the cache.
func NewRegistry(ctx context.Context, repo Repository, log Logger) (*Registry, error) {
	if log == nil {
		log = noopLogger{}
	}
	r := &Registry{
		repo:      repo,
		log:       log,
		cache:     make(map[int]*Device),
		byAddress: make(map[addressKey]int),
	}
	if err := r.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("load device cache: %w", err)
	}
	return r, nil
}

// RefreshCache reloads every device from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	cache := make(map[int]*Device, len(devices))
	byAddress := make(map[addressKey]int, len(devices))
	for _, d := range devices {
		cache[d.ID] = d
		byAddress[addressKey{d.CoordinatorID, d.Address}] = d.ID
	}

	r.mu.Lock()
	r.cache = cache
	r.byAddress = byAddress
	r.mu.Unlock()

	r.log.Debug("device cache refreshed", "devices", len(devices))
	return nil
}

// GetDevice returns a copy of the device with the given platform id.
func (r *Registry) GetDevice(ctx context.Context, id int) (*Device, error) {
	r.mu.RLock()
	d, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return d.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.storeCached(d)
	return d.DeepCopy(), nil
}

// GetByAddress returns a copy of the device at a mesh address, or
// ErrDeviceNotFound when the address is not linked to any device.
func (r *Registry) GetByAddress(ctx context.Context, coordinatorID int, address string) (*Device, error) {
	r.mu.RLock()
	id, ok := r.byAddress[addressKey{coordinatorID, address}]
	var d *Device
	if ok {
		d = r.cache[id]
	}
	r.mu.RUnlock()
	if d != nil {
		return d.DeepCopy(), nil
	}

	d, err := r.repo.GetByAddress(ctx, coordinatorID, address)
	if err != nil {
		return nil, err
	}
	r.storeCached(d)
	return d.DeepCopy(), nil
}

// ListByCoordinator returns copies of every device on one coordinator.
func (r *Registry) ListByCoordinator(ctx context.Context, coordinatorID int) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Device
	for _, d := range r.cache {
		if d.CoordinatorID == coordinatorID {
			out = append(out, d.DeepCopy())
		}
	}
	return out, nil
}

// List returns copies of every device in the directory.
func (r *Registry) List(ctx context.Context) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.cache))
	for _, d := range r.cache {
		out = append(out, d.DeepCopy())
	}
	return out, nil
}

// Create persists a new device record and caches it.
func (r *Registry) Create(ctx context.Context, d *Device) (*Device, error) {
	created, err := r.repo.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	r.storeCached(created)
	r.log.Info("device created", "id", created.ID, "name", created.Name, "type", created.Type)
	return created.DeepCopy(), nil
}

// Update rewrites a device record and refreshes the cached entry.
func (r *Registry) Update(ctx context.Context, d *Device) (*Device, error) {
	updated, err := r.repo.Update(ctx, d)
	if err != nil {
		return nil, err
	}
	r.replaceCached(d.ID, updated)
	return updated.DeepCopy(), nil
}

// Delete removes a device record and evicts it from the cache.
func (r *Registry) Delete(ctx context.Context, id int) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.evict(id)
	r.log.Info("device deleted", "id", id)
	return nil
}

// RekeyAddress moves a device to a new mesh address while keeping its
// platform id. Used when a coordinator's IEEE address changes.
func (r *Registry) RekeyAddress(ctx context.Context, coordinatorID int, oldAddress, newAddress string) error {
	if err := r.repo.RekeyAddress(ctx, coordinatorID, oldAddress, newAddress); err != nil {
		return err
	}

	r.mu.Lock()
	oldKey := addressKey{coordinatorID, oldAddress}
	if id, ok := r.byAddress[oldKey]; ok {
		delete(r.byAddress, oldKey)
		r.byAddress[addressKey{coordinatorID, newAddress}] = id
		if d, ok := r.cache[id]; ok {
			cp := d.DeepCopy()
			cp.Address = newAddress
			r.cache[id] = cp
		}
	}
	r.mu.Unlock()

	r.log.Info("device address rekeyed", "coordinator", coordinatorID, "old", oldAddress, "new", newAddress)
	return nil
}

// BatchUpdateStates applies a batch of state writes to one device in a
// single persistence call, then updates the cached copy.
func (r *Registry) BatchUpdateStates(ctx context.Context, id int, updates []StateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.repo.UpdateStates(ctx, id, updates); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.cache[id]; ok {
		cp := d.DeepCopy()
		if cp.States == nil {
			cp.States = States{}
		}
		for _, u := range updates {
			cp.States[u.Key] = State{Value: u.Value, UI: u.UI}
		}
		r.cache[id] = cp
	}
	r.mu.Unlock()
	return nil
}

// SetErrorState flags a device as being in an error condition. Passing
// an empty reason clears the flag.
func (r *Registry) SetErrorState(ctx context.Context, id int, reason string) error {
	if err := r.repo.SetErrorState(ctx, id, reason); err != nil {
		return err
	}
	r.mutateCached(id, func(d *Device) { d.ErrorState = reason })
	return nil
}

// UpdateStateImage sets the UI image selector for a device.
func (r *Registry) UpdateStateImage(ctx context.Context, id int, image StateImage) error {
	if err := r.repo.SetStateImage(ctx, id, image); err != nil {
		return err
	}
	r.mutateCached(id, func(d *Device) { d.StateImage = image })
	return nil
}

// SetLastSeen records when a device last reported.
func (r *Registry) SetLastSeen(ctx context.Context, id int, seen time.Time) error {
	if err := r.repo.SetLastSeen(ctx, id, seen); err != nil {
		return err
	}
	t := seen.UTC()
	r.mutateCached(id, func(d *Device) { d.LastSeen = &t })
	return nil
}

// GetGroupMembers returns the platform ids belonging to a group device.
func (r *Registry) GetGroupMembers(ctx context.Context, groupID int) ([]int, error) {
	d, err := r.GetDevice(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !d.Type.IsGroup() {
		return nil, fmt.Errorf("%w: id %d type %q", ErrNotGroup, groupID, d.Type)
	}
	return r.repo.GroupMembers(ctx, groupID)
}

// ReplaceGroupMembers swaps a group's membership wholesale.
func (r *Registry) ReplaceGroupMembers(ctx context.Context, groupID int, memberIDs []int) error {
	d, err := r.GetDevice(ctx, groupID)
	if err != nil {
		return err
	}
	if !d.Type.IsGroup() {
		return fmt.Errorf("%w: id %d type %q", ErrNotGroup, groupID, d.Type)
	}
	return r.repo.ReplaceGroupMembers(ctx, groupID, memberIDs)
}

// Stats returns cache counters for diagnostics.
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[string]int)
	enabled := 0
	for _, d := range r.cache {
		byType[string(d.Type)]++
		if d.Enabled {
			enabled++
		}
	}
	return map[string]any{
		"devices": len(r.cache),
		"enabled": enabled,
		"by_type": byType,
	}
}

func (r *Registry) storeCached(d *Device) {
	r.mu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.byAddress[addressKey{d.CoordinatorID, d.Address}] = d.ID
	r.mu.Unlock()
}

// replaceCached swaps a cached entry whose address may have changed.
func (r *Registry) replaceCached(id int, updated *Device) {
	r.mu.Lock()
	if old, ok := r.cache[id]; ok {
		delete(r.byAddress, addressKey{old.CoordinatorID, old.Address})
	}
	r.cache[id] = updated.DeepCopy()
	r.byAddress[addressKey{updated.CoordinatorID, updated.Address}] = id
	r.mu.Unlock()
}

func (r *Registry) mutateCached(id int, fn func(*Device)) {
	r.mu.Lock()
	if d, ok := r.cache[id]; ok {
		cp := d.DeepCopy()
		fn(cp)
		r.cache[id] = cp
	}
	r.mu.Unlock()
}

func (r *Registry) evict(id int) {
	r.mu.Lock()
	if d, ok := r.cache[id]; ok {
		delete(r.byAddress, addressKey{d.CoordinatorID, d.Address})
		delete(r.cache, id)
	}
	r.mu.Unlock()
}
