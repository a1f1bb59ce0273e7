// Package admin defines the wire-level data model consumed by the admin
// log: operation kinds, the operation envelope, and the sparse field set
// used by store-update operations.
package admin

import "fmt"

// Role distinguishes a parent (source-of-truth) controller from a child
// (mirroring) controller. Several operation kinds branch on this.
type Role int

const (
	RoleParent Role = iota
	RoleChild
)

func (r Role) String() string {
	if r == RoleParent {
		return "parent"
	}
	return "child"
}

// Kind enumerates the closed set of admin operations this core knows how
// to dispatch. The set is fixed; a kind byte outside it decodes as that
// raw Kind value (Known reports false) and, like KindUnknown, is handled
// as an UnsupportedOperation (ignored-success).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStoreCreation
	KindValueSchemaCreation
	KindDisableStoreWrite
	KindEnableStoreRead
	KindDisableStoreRead
	KindDeleteAllVersions
	KindEnableStoreWrite
	KindDeleteOldVersion
	KindAddVersion
	KindMigrateStore
	KindAbortMigration
	KindUpdateStore
	KindDeleteStore
	KindSetStoreOwner
	KindSetStoreCurrentVersion
	KindSetStorePartition
	KindSupersetSchemaCreation
	KindKillOfflinePushJob
	KindDerivedSchemaCreation

	kindSentinelCount
)

var kindNames = map[Kind]string{
	KindUnknown:                "UNKNOWN",
	KindStoreCreation:          "STORE_CREATION",
	KindValueSchemaCreation:    "VALUE_SCHEMA_CREATION",
	KindDisableStoreWrite:      "DISABLE_STORE_WRITE",
	KindEnableStoreRead:        "ENABLE_STORE_READ",
	KindDisableStoreRead:       "DISABLE_STORE_READ",
	KindDeleteAllVersions:      "DELETE_ALL_VERSIONS",
	KindEnableStoreWrite:       "ENABLE_STORE_WRITE",
	KindDeleteOldVersion:       "DELETE_OLD_VERSION",
	KindAddVersion:             "ADD_VERSION",
	KindMigrateStore:           "MIGRATE_STORE",
	KindAbortMigration:         "ABORT_MIGRATION",
	KindUpdateStore:            "UPDATE_STORE",
	KindDeleteStore:            "DELETE_STORE",
	KindSetStoreOwner:          "SET_STORE_OWNER",
	KindSetStoreCurrentVersion: "SET_STORE_CURRENT_VERSION",
	KindSetStorePartition:      "SET_STORE_PARTITION",
	KindSupersetSchemaCreation: "SUPERSET_SCHEMA_CREATION",
	KindKillOfflinePushJob:     "KILL_OFFLINE_PUSH_JOB",
	KindDerivedSchemaCreation:  "DERIVED_SCHEMA_CREATION",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// Known reports whether k is one of the nineteen closed kinds this core
// dispatches. KindUnknown and anything above the sentinel are not.
func (k Kind) Known() bool {
	return k > KindUnknown && k < kindSentinelCount
}

// Sentinels used by UpdateStore and version handlers: magic version
// numbers meaning "no-op" or "current version" without adding a
// second field to the wire format.
const (
	// IgnoredCurrentVersion means "leave currentVersion untouched".
	IgnoredCurrentVersion int32 = -1
	// IgnoreVersion means "this operation does not target a specific
	// version number" (used by DeleteStore's largestUsedVersion field).
	IgnoreVersion int32 = -1
)

// ClusterWideStoreKey is the reserved store key meaning "this operation
// targets the cluster, not a single store". No kind in the closed set
// currently emits it; StoreQueue and DispatchTable keep the hook so a
// future cluster-wide kind has somewhere to route without a schema
// change to the queueing layer.
const ClusterWideStoreKey = ""

// VersionPayload carries the fields common to version-lifecycle
// operations (AddVersion, DeleteOldVersion, DeleteAllVersions).
type VersionPayload struct {
	VersionNumber      int32
	PushJobID          string
	NumberOfPartitions int
	PushType           string
	SourceFabric       string
}

// SchemaPayload carries a schema registration (value, derived, superset).
type SchemaPayload struct {
	SchemaID   int32
	Definition string
}

// UpdateStoreParams is the sparse optional-field set for KindUpdateStore.
// A nil pointer field means "leave this property unchanged", so a
// partial update cannot be confused with an explicit zero value.
type UpdateStoreParams struct {
	Owner                        *string
	PartitionCount               *int
	CurrentVersion               *int32
	EnableReads                  *bool
	EnableWrites                 *bool
	StorageQuotaInByte           *int64
	ReadQuotaInCU                *int64
	AccessControlled             *bool
	CompressionStrategy          *string
	ChunkingEnabled              *bool
	BatchGetChunkingEnabled      *bool
	Incremental                  *bool
	SeparateRealTimeTopicEnabled *bool
	NativeReplicationEnabled     *bool
	ReplicationFactor            *int
	MigrationDuplicateStore      *bool
	BackupStrategy               *string
	AutoSchemaPushJobEnabled     *bool
}

// MigrationPayload carries KindMigrateStore / KindAbortMigration fields.
type MigrationPayload struct {
	SourceCluster string
	DestCluster   string
}

// Payload is a closed sum type: exactly one of these fields is non-nil,
// selected by Operation.Kind, never inferred from shape alone.
type Payload struct {
	Version                  *VersionPayload
	Schema                   *SchemaPayload
	UpdateStore              *UpdateStoreParams
	Migration                *MigrationPayload
	Owner                    *string
	PartitionCount           *int
	LargestUsedVersionNumber *int32
}

// Operation is a single decoded admin log record: the unit of work the
// Tailer hands to a StoreQueue and the DispatchTable ultimately executes.
type Operation struct {
	Kind        Kind
	ClusterName string
	StoreName   string
	ExecutionID int64
	Payload     Payload
}

// Wrapper is the envelope persisted alongside Operation while it sits in
// a StoreQueue awaiting execution: the raw log offset it was read from,
// plus the number of execution attempts made so far (for backoff).
type Wrapper struct {
	Operation Operation
	Offset    uint64
	Attempts  int
}

func (w Wrapper) String() string {
	return fmt.Sprintf("Wrapper{kind=%s store=%s execId=%d offset=%d attempts=%d}",
		w.Operation.Kind, w.Operation.StoreName, w.Operation.ExecutionID, w.Offset, w.Attempts)
}
