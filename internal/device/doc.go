// Package device implements the platform device directory.
//
// A Device is the platform-side record for one zigbee mesh endpoint or
// group: its archetype, per-property configuration, and stored state
// map. Devices are keyed by an integer platform id; the combination of
// coordinator id and mesh address (IEEE address, or group id for
// synthetic group devices) is unique.
//
// The package has three layers:
//
//   - types.go defines Device, Archetype, Config and the state model.
//   - Repository (repository.go) persists devices in SQLite. State
//     writes use json_patch so concurrent updates to different keys
//     never clobber each other.
//   - Registry (registry.go) serves reads from an in-memory cache and
//     routes writes through the repository. Every device handed out is
//     a deep copy, so callers can mutate results freely.
//
// Typical usage:
//
//	repo := device.NewSQLiteRepository(db.DB())
//	registry, err := device.NewRegistry(ctx, repo, log)
//	if err != nil {
//	    return err
//	}
//	dev, err := registry.GetByAddress(ctx, coordinatorID, ieee)
package device
