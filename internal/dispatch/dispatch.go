// Package dispatch implements DispatchTable: the switch from a decoded
// admin.Operation to the AdminBackend call(s) that actually carry it out,
// branching on Role where the parent/child split matters (store
// migration, version addition).
package dispatch

import (
	"fmt"

	"github.com/ziyaddin/venice/internal/admin"
	"github.com/ziyaddin/venice/internal/backend"
)

// Table dispatches a decoded admin.Operation to the AdminBackend. It
// holds no per-operation state; Role is fixed for the lifetime of this
// consumer process.
type Table struct {
	backend backend.AdminBackend
	role    admin.Role
}

func New(b backend.AdminBackend, role admin.Role) *Table {
	return &Table{backend: b, role: role}
}

// Dispatch executes op against the backend. A KindUnknown operation (one
// outside the closed nineteen-kind set) returns
// *admin.UnsupportedOperationError, which the FailureClassifier treats
// as ignored-success rather than stalling the queue on a kind this
// deployment does not implement.
func (t *Table) Dispatch(op admin.Operation) error {
	switch op.Kind {
	case admin.KindStoreCreation:
		return t.handleStoreCreation(op)
	case admin.KindValueSchemaCreation:
		return t.handleSchema(op, t.backend.AddValueSchema)
	case admin.KindDerivedSchemaCreation:
		return t.handleSchema(op, t.backend.AddDerivedSchema)
	case admin.KindSupersetSchemaCreation:
		return t.handleSchema(op, t.backend.AddSupersetSchema)
	case admin.KindDisableStoreWrite:
		return wrapRetriable(t.backend.SetStoreWriteability(op.ClusterName, op.StoreName, false))
	case admin.KindEnableStoreWrite:
		return wrapRetriable(t.backend.SetStoreWriteability(op.ClusterName, op.StoreName, true))
	case admin.KindDisableStoreRead:
		return wrapRetriable(t.backend.SetStoreReadability(op.ClusterName, op.StoreName, false))
	case admin.KindEnableStoreRead:
		return wrapRetriable(t.backend.SetStoreReadability(op.ClusterName, op.StoreName, true))
	case admin.KindDeleteAllVersions:
		return wrapRetriable(t.backend.DeleteAllVersionsInStore(op.ClusterName, op.StoreName))
	case admin.KindDeleteOldVersion:
		return t.handleDeleteOldVersion(op)
	case admin.KindAddVersion:
		return t.handleAddVersion(op)
	case admin.KindMigrateStore:
		return t.handleMigrateStore(op)
	case admin.KindAbortMigration:
		return t.handleAbortMigration(op)
	case admin.KindUpdateStore:
		return t.handleUpdateStore(op)
	case admin.KindDeleteStore:
		return t.handleDeleteStore(op)
	case admin.KindSetStoreOwner:
		return t.handleSetStoreOwner(op)
	case admin.KindSetStoreCurrentVersion:
		return t.handleSetStoreCurrentVersion(op)
	case admin.KindSetStorePartition:
		return t.handleSetStorePartition(op)
	case admin.KindKillOfflinePushJob:
		return t.handleKillOfflinePush(op)
	default:
		return &admin.UnsupportedOperationError{Kind: op.Kind}
	}
}

func (t *Table) handleStoreCreation(op admin.Operation) error {
	owner := ""
	partitions := 0
	if op.Payload.Owner != nil {
		owner = *op.Payload.Owner
	}
	if op.Payload.PartitionCount != nil {
		partitions = *op.Payload.PartitionCount
	}

	exists, err := t.backend.HasStore(op.ClusterName, op.StoreName)
	if err != nil {
		return wrapRetriable(err)
	}
	if exists {
		// Store creation is idempotent: a replayed StoreCreation for an
		// already-existing store is not an error.
		return nil
	}
	return wrapRetriable(t.backend.AddStore(op.ClusterName, op.StoreName, owner, partitions))
}

func (t *Table) handleSchema(op admin.Operation, add func(cluster, store string, schema admin.SchemaPayload) error) error {
	if op.Payload.Schema == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: %s missing schema payload", op.Kind)}
	}
	return wrapRetriable(add(op.ClusterName, op.StoreName, *op.Payload.Schema))
}

// handleDeleteOldVersion deletes a single historical version, unless the
// target store is a metadata system store, in which case the version is
// dematerialized instead of deleted outright.
func (t *Table) handleDeleteOldVersion(op admin.Operation) error {
	if op.Payload.Version == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: DeleteOldVersion missing version payload")}
	}
	version := op.Payload.Version.VersionNumber
	if isMetadataStore(op.StoreName) {
		return wrapRetriable(t.backend.DematerializeMetadataStoreVersion(op.ClusterName, op.StoreName, version))
	}
	return wrapRetriable(t.backend.DeleteOldVersionInStore(op.ClusterName, op.StoreName, version))
}

// handleAddVersion branches on role: the parent controller is the
// source of truth and starts ingestion directly (or mirrors a
// ZK-shared version for metadata stores), while a child controller only
// ever replicates a version the parent already admitted.
func (t *Table) handleAddVersion(op admin.Operation) error {
	if op.Payload.Version == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: AddVersion missing version payload")}
	}
	v := *op.Payload.Version

	if t.role == admin.RoleChild {
		if err := t.checkPreconditionForReplicateAddVersion(op); err != nil {
			return err
		}
		return wrapRetriable(t.backend.ReplicateAddVersionAndStartIngestion(op.ClusterName, op.StoreName, v))
	}

	if isMetadataStore(op.StoreName) {
		if err := t.backend.NewZkSharedStoreVersion(op.ClusterName, op.StoreName, v); err != nil {
			return wrapRetriable(err)
		}
		return wrapRetriable(t.backend.MaterializeMetadataStoreVersion(op.ClusterName, op.StoreName, v))
	}

	return wrapRetriable(t.backend.AddVersionAndStartIngestion(op.ClusterName, op.StoreName, v))
}

// checkPreconditionForReplicateAddVersion enforces that a child
// controller must already know about the store before it can replicate
// a version addition onto it.
func (t *Table) checkPreconditionForReplicateAddVersion(op admin.Operation) error {
	exists, err := t.backend.HasStore(op.ClusterName, op.StoreName)
	if err != nil {
		return wrapRetriable(err)
	}
	if !exists {
		return &admin.RetriableError{Err: fmt.Errorf("dispatch: child controller has not yet seen store %s/%s", op.ClusterName, op.StoreName)}
	}
	return nil
}

func (t *Table) handleMigrateStore(op admin.Operation) error {
	if op.Payload.Migration == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: MigrateStore missing migration payload")}
	}
	m := *op.Payload.Migration

	if t.role == admin.RoleChild {
		return wrapRetriable(t.backend.SetStoreConfigForMigration(op.ClusterName, op.StoreName, m.DestCluster))
	}
	return wrapRetriable(t.backend.MigrateStore(op.ClusterName, op.StoreName, m.DestCluster))
}

func (t *Table) handleAbortMigration(op admin.Operation) error {
	if op.Payload.Migration == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: AbortMigration missing migration payload")}
	}
	m := *op.Payload.Migration
	return wrapRetriable(t.backend.AbortMigration(op.ClusterName, op.StoreName, m.DestCluster))
}

func (t *Table) handleUpdateStore(op admin.Operation) error {
	if op.Payload.UpdateStore == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: UpdateStore missing params payload")}
	}
	params := *op.Payload.UpdateStore

	if t.role == admin.RoleChild {
		if err := t.checkPreconditionForReplicateUpdateStore(op); err != nil {
			return err
		}
		return wrapRetriable(t.backend.ReplicateUpdateStore(op.ClusterName, op.StoreName, params))
	}
	return wrapRetriable(t.backend.UpdateStore(op.ClusterName, op.StoreName, params))
}

func (t *Table) checkPreconditionForReplicateUpdateStore(op admin.Operation) error {
	exists, err := t.backend.HasStore(op.ClusterName, op.StoreName)
	if err != nil {
		return wrapRetriable(err)
	}
	if !exists {
		return &admin.RetriableError{Err: fmt.Errorf("dispatch: child controller has not yet seen store %s/%s", op.ClusterName, op.StoreName)}
	}
	return nil
}

// handleDeleteStore deletes a store outright, unless it is mid-migration,
// in which case the backend is told to ignore the largest-used-version
// check rather than compare against a version the migration target owns.
func (t *Table) handleDeleteStore(op admin.Operation) error {
	exists, err := t.backend.HasStore(op.ClusterName, op.StoreName)
	if err != nil {
		return wrapRetriable(err)
	}
	if !exists {
		return nil
	}

	info, err := t.backend.GetStore(op.ClusterName, op.StoreName)
	if err != nil {
		return wrapRetriable(err)
	}

	version := admin.IgnoreVersion
	if info.MigratingTo == "" && op.Payload.LargestUsedVersionNumber != nil {
		version = *op.Payload.LargestUsedVersionNumber
	}
	return wrapRetriable(t.backend.DeleteStore(op.ClusterName, op.StoreName, version))
}

func (t *Table) handleSetStoreOwner(op admin.Operation) error {
	if op.Payload.Owner == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: SetStoreOwner missing owner payload")}
	}
	return wrapRetriable(t.backend.SetStoreOwner(op.ClusterName, op.StoreName, *op.Payload.Owner))
}

func (t *Table) handleSetStoreCurrentVersion(op admin.Operation) error {
	if op.Payload.Version == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: SetStoreCurrentVersion missing version payload")}
	}
	return wrapRetriable(t.backend.SetStoreCurrentVersion(op.ClusterName, op.StoreName, op.Payload.Version.VersionNumber))
}

func (t *Table) handleSetStorePartition(op admin.Operation) error {
	if op.Payload.PartitionCount == nil {
		return &admin.MalformedError{Err: fmt.Errorf("dispatch: SetStorePartition missing partition count payload")}
	}
	return wrapRetriable(t.backend.SetStorePartitionCount(op.ClusterName, op.StoreName, *op.Payload.PartitionCount))
}

// handleKillOfflinePush is a no-op in the parent role: the parent
// controller observes push-job lifecycle through other channels, and only
// a child controller ever owns the local ingestion task to kill.
func (t *Table) handleKillOfflinePush(op admin.Operation) error {
	if t.role == admin.RoleParent {
		return nil
	}
	pushJobID := ""
	if op.Payload.Version != nil {
		pushJobID = op.Payload.Version.PushJobID
	}
	return wrapRetriable(t.backend.KillOfflinePush(op.ClusterName, op.StoreName, pushJobID))
}

// isMetadataStore reports whether store is a system metadata store
// (a store name ending in "_metadata_store"), which AddVersion
// handles via the ZK-shared-version path instead of normal ingestion.
func isMetadataStore(store string) bool {
	const suffix = "_metadata_store"
	return len(store) >= len(suffix) && store[len(store)-len(suffix):] == suffix
}

// wrapRetriable wraps a non-nil backend error as admin.RetriableError
// unless it is already a classified admin error (Fatal, Malformed,
// Unsupported), matching the default assumption that backend failures
// are transient unless the backend says otherwise.
func wrapRetriable(err error) error {
	if err == nil {
		return nil
	}
	if admin.IsFatal(err) || admin.IsMalformed(err) || admin.IsUnsupported(err) || admin.IsRetriable(err) {
		return err
	}
	return &admin.RetriableError{Err: err}
}
