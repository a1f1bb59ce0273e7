// Package backend declares AdminBackend: the collaborator that actually
// owns store metadata, schema registries, and version state. The real
// backend (store catalog, schema registry, version manager) is out of
// scope for this core; DispatchTable only ever sees it through this
// interface.
package backend

import "github.com/ziyaddin/venice/internal/admin"

// StoreInfo is the subset of store metadata DispatchTable needs to read
// back when branching on current state (e.g. HasStore, GetStore).
type StoreInfo struct {
	Name            string
	Owner           string
	PartitionCount  int
	CurrentVersion  int32
	ReadsEnabled    bool
	WritesEnabled   bool
	MigratingTo     string
}

// AdminBackend is every mutation DispatchTable's handlers can make, one
// method per side effect in the UpdateStore field list and the
// per-kind handler table.
type AdminBackend interface {
	HasStore(cluster, store string) (bool, error)
	GetStore(cluster, store string) (StoreInfo, error)
	AddStore(cluster, store, owner string, partitionCount int) error
	DeleteStore(cluster, store string, largestUsedVersionNumber int32) error

	SetStoreWriteability(cluster, store string, enabled bool) error
	SetStoreReadability(cluster, store string, enabled bool) error
	SetStoreCurrentVersion(cluster, store string, version int32) error
	SetStoreOwner(cluster, store, owner string) error
	SetStorePartitionCount(cluster, store string, count int) error
	UpdateStore(cluster, store string, params admin.UpdateStoreParams) error

	AddValueSchema(cluster, store string, schema admin.SchemaPayload) error
	AddDerivedSchema(cluster, store string, schema admin.SchemaPayload) error
	AddSupersetSchema(cluster, store string, schema admin.SchemaPayload) error

	DeleteAllVersionsInStore(cluster, store string) error
	DeleteOldVersionInStore(cluster, store string, version int32) error
	DematerializeMetadataStoreVersion(cluster, store string, version int32) error

	MigrateStore(cluster, store, destCluster string) error
	SetStoreConfigForMigration(cluster, store, destCluster string) error
	AbortMigration(cluster, store, destCluster string) error

	ReplicateAddVersionAndStartIngestion(cluster, store string, version admin.VersionPayload) error
	AddVersionAndStartIngestion(cluster, store string, version admin.VersionPayload) error
	NewZkSharedStoreVersion(cluster, store string, version admin.VersionPayload) error
	MaterializeMetadataStoreVersion(cluster, store string, version admin.VersionPayload) error

	KillOfflinePush(cluster, store, pushJobID string) error
	ReplicateUpdateStore(cluster, store string, params admin.UpdateStoreParams) error
}
