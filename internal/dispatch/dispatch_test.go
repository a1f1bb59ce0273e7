package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziyaddin/venice/internal/admin"
	"github.com/ziyaddin/venice/internal/backend"
)

func TestDispatch_StoreCreation_IsIdempotent(t *testing.T) {
	b := backend.NewFake()
	table := New(b, admin.RoleParent)

	owner := "alice"
	partitions := 4
	op := admin.Operation{
		Kind:        admin.KindStoreCreation,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Owner: &owner, PartitionCount: &partitions},
	}

	require.NoError(t, table.Dispatch(op))
	require.NoError(t, table.Dispatch(op), "replaying a StoreCreation must not error")

	info, err := b.GetStore("c0", "store-a")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Owner)
	assert.Equal(t, 4, info.PartitionCount)
}

func TestDispatch_UnknownKind_IsUnsupported(t *testing.T) {
	b := backend.NewFake()
	table := New(b, admin.RoleParent)

	err := table.Dispatch(admin.Operation{Kind: admin.KindUnknown, ClusterName: "c0", StoreName: "s0"})
	require.Error(t, err)
	assert.True(t, admin.IsUnsupported(err))
}

func TestDispatch_AddVersion_ChildRequiresKnownStore(t *testing.T) {
	b := backend.NewFake()
	table := New(b, admin.RoleChild)

	op := admin.Operation{
		Kind:        admin.KindAddVersion,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{VersionNumber: 1}},
	}

	err := table.Dispatch(op)
	require.Error(t, err)
	assert.True(t, admin.IsRetriable(err), "a child that hasn't seen the store yet should retry, not fail permanently")
}

func TestDispatch_AddVersion_ChildReplicatesOnceStoreExists(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleChild)

	op := admin.Operation{
		Kind:        admin.KindAddVersion,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{VersionNumber: 1}},
	}
	require.NoError(t, table.Dispatch(op))
}

func TestDispatch_AddVersion_ParentStartsIngestionDirectly(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleParent)

	op := admin.Operation{
		Kind:        admin.KindAddVersion,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{VersionNumber: 2}},
	}
	require.NoError(t, table.Dispatch(op))
}

func TestDispatch_UpdateStore_AppliesSparseFields(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleParent)

	newOwner := "bob"
	op := admin.Operation{
		Kind:        admin.KindUpdateStore,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{UpdateStore: &admin.UpdateStoreParams{Owner: &newOwner}},
	}
	require.NoError(t, table.Dispatch(op))

	info, err := b.GetStore("c0", "store-a")
	require.NoError(t, err)
	assert.Equal(t, "bob", info.Owner)
	assert.Equal(t, 1, info.PartitionCount, "fields not present in the sparse update must be left untouched")
}

func TestDispatch_BackendFailure_IsClassifiedRetriableByDefault(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	b.OnCall = func(method, cluster, store string, attempt int) error {
		if method == "SetStoreWriteability" && attempt == 1 {
			return errors.New("transient backend unavailable")
		}
		return nil
	}
	table := New(b, admin.RoleParent)

	err := table.Dispatch(admin.Operation{Kind: admin.KindDisableStoreWrite, ClusterName: "c0", StoreName: "store-a"})
	require.Error(t, err)
	assert.True(t, admin.IsRetriable(err))

	// Second attempt succeeds since the hook only fails attempt 1.
	require.NoError(t, table.Dispatch(admin.Operation{Kind: admin.KindDisableStoreWrite, ClusterName: "c0", StoreName: "store-a"}))
}

func TestDispatch_SchemaCreation_MalformedWithoutPayload(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleParent)

	err := table.Dispatch(admin.Operation{Kind: admin.KindValueSchemaCreation, ClusterName: "c0", StoreName: "store-a"})
	require.Error(t, err)
	assert.True(t, admin.IsMalformed(err))
}

func TestDispatch_KillOfflinePushJob_ParentIsNoop(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	b.OnCall = func(method, cluster, store string, attempt int) error {
		if method == "KillOfflinePush" {
			t.Fatalf("parent role must never call KillOfflinePush on the backend")
		}
		return nil
	}
	table := New(b, admin.RoleParent)

	op := admin.Operation{
		Kind:        admin.KindKillOfflinePushJob,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{PushJobID: "push-1"}},
	}
	require.NoError(t, table.Dispatch(op))
}

func TestDispatch_KillOfflinePushJob_ChildCallsBackend(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleChild)

	op := admin.Operation{
		Kind:        admin.KindKillOfflinePushJob,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{PushJobID: "push-1"}},
	}
	require.NoError(t, table.Dispatch(op))
}

func TestDispatch_SetStoreCurrentVersion(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleParent)

	op := admin.Operation{
		Kind:        admin.KindSetStoreCurrentVersion,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{VersionNumber: 3}},
	}
	require.NoError(t, table.Dispatch(op))

	info, err := b.GetStore("c0", "store-a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.CurrentVersion)
}

func TestDispatch_SetStorePartition(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	table := New(b, admin.RoleParent)

	partitions := 8
	op := admin.Operation{
		Kind:        admin.KindSetStorePartition,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{PartitionCount: &partitions},
	}
	require.NoError(t, table.Dispatch(op))

	info, err := b.GetStore("c0", "store-a")
	require.NoError(t, err)
	assert.Equal(t, 8, info.PartitionCount)
}

func TestDispatch_DeleteOldVersion_MetadataStoreDematerializes(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a_metadata_store", "alice", 1))
	var called string
	b.OnCall = func(method, cluster, store string, attempt int) error {
		if method == "DematerializeMetadataStoreVersion" || method == "DeleteOldVersionInStore" {
			called = method
		}
		return nil
	}
	table := New(b, admin.RoleParent)

	op := admin.Operation{
		Kind:        admin.KindDeleteOldVersion,
		ClusterName: "c0",
		StoreName:   "store-a_metadata_store",
		Payload:     admin.Payload{Version: &admin.VersionPayload{VersionNumber: 1}},
	}
	require.NoError(t, table.Dispatch(op))
	assert.Equal(t, "DematerializeMetadataStoreVersion", called)
}

func TestDispatch_DeleteOldVersion_RegularStoreDeletes(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	var called string
	b.OnCall = func(method, cluster, store string, attempt int) error {
		if method == "DematerializeMetadataStoreVersion" || method == "DeleteOldVersionInStore" {
			called = method
		}
		return nil
	}
	table := New(b, admin.RoleParent)

	op := admin.Operation{
		Kind:        admin.KindDeleteOldVersion,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{Version: &admin.VersionPayload{VersionNumber: 1}},
	}
	require.NoError(t, table.Dispatch(op))
	assert.Equal(t, "DeleteOldVersionInStore", called)
}

func TestDispatch_DeleteStore_MigratingUsesIgnoreSentinel(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	require.NoError(t, b.MigrateStore("c0", "store-a", "c1"))

	rec := &deleteRecorder{Fake: b}
	table := New(rec, admin.RoleParent)

	largest := int32(5)
	op := admin.Operation{
		Kind:        admin.KindDeleteStore,
		ClusterName: "c0",
		StoreName:   "store-a",
		Payload:     admin.Payload{LargestUsedVersionNumber: &largest},
	}
	require.NoError(t, table.Dispatch(op))
	require.NotNil(t, rec.deletedWithVersion)
	assert.Equal(t, admin.IgnoreVersion, *rec.deletedWithVersion, "a migrating store must be deleted with the ignore-version sentinel, not the payload's 5")

	_, err := b.GetStore("c0", "store-a")
	require.Error(t, err, "store should have been deleted")
}

// deleteRecorder records the version DispatchTable passes to DeleteStore.
type deleteRecorder struct {
	*backend.Fake
	deletedWithVersion *int32
}

func (r *deleteRecorder) DeleteStore(cluster, store string, largestUsedVersionNumber int32) error {
	v := largestUsedVersionNumber
	r.deletedWithVersion = &v
	return r.Fake.DeleteStore(cluster, store, largestUsedVersionNumber)
}

func TestDispatch_DeleteStore_AlreadyGoneIsNoop(t *testing.T) {
	b := backend.NewFake()
	table := New(b, admin.RoleParent)

	op := admin.Operation{Kind: admin.KindDeleteStore, ClusterName: "c0", StoreName: "store-a"}
	require.NoError(t, table.Dispatch(op))
}
