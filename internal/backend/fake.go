package backend

import (
	"fmt"
	"sync"

	"github.com/ziyaddin/venice/internal/admin"
)

// FailureHook lets a test force a particular call to fail on a chosen
// attempt, returning the error DispatchTable should see (typically a
// *admin.RetriableError or *admin.FatalError). Returning nil means let
// the call proceed normally.
type FailureHook func(method, cluster, store string, attempt int) error

// Fake is an in-memory AdminBackend used by the standalone binary's demo
// mode and by every test that exercises DispatchTable without a real
// store catalog.
type Fake struct {
	mu      sync.Mutex
	stores  map[string]map[string]*StoreInfo // cluster -> store -> info
	calls   map[string]int                   // "cluster/store/method" -> attempt count
	OnCall  FailureHook
}

func NewFake() *Fake {
	return &Fake{
		stores: make(map[string]map[string]*StoreInfo),
		calls:  make(map[string]int),
	}
}

func (f *Fake) attempt(method, cluster, store string) int {
	key := cluster + "/" + store + "/" + method
	f.calls[key]++
	return f.calls[key]
}

func (f *Fake) check(method, cluster, store string) error {
	attempt := f.attempt(method, cluster, store)
	if f.OnCall == nil {
		return nil
	}
	return f.OnCall(method, cluster, store, attempt)
}

func (f *Fake) storeLocked(cluster, store string) (*StoreInfo, bool) {
	byStore, ok := f.stores[cluster]
	if !ok {
		return nil, false
	}
	info, ok := byStore[store]
	return info, ok
}

func (f *Fake) HasStore(cluster, store string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("HasStore", cluster, store); err != nil {
		return false, err
	}
	_, ok := f.storeLocked(cluster, store)
	return ok, nil
}

func (f *Fake) GetStore(cluster, store string) (StoreInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetStore", cluster, store); err != nil {
		return StoreInfo{}, err
	}
	info, ok := f.storeLocked(cluster, store)
	if !ok {
		return StoreInfo{}, fmt.Errorf("backend: store %s/%s not found", cluster, store)
	}
	return *info, nil
}

func (f *Fake) AddStore(cluster, store, owner string, partitionCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("AddStore", cluster, store); err != nil {
		return err
	}
	if _, ok := f.stores[cluster]; !ok {
		f.stores[cluster] = make(map[string]*StoreInfo)
	}
	f.stores[cluster][store] = &StoreInfo{
		Name:           store,
		Owner:          owner,
		PartitionCount: partitionCount,
		CurrentVersion: admin.IgnoredCurrentVersion,
	}
	return nil
}

func (f *Fake) DeleteStore(cluster, store string, largestUsedVersionNumber int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteStore", cluster, store); err != nil {
		return err
	}
	if byStore, ok := f.stores[cluster]; ok {
		delete(byStore, store)
	}
	return nil
}

func (f *Fake) mutate(method, cluster, store string, mutate func(*StoreInfo)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(method, cluster, store); err != nil {
		return err
	}
	info, ok := f.storeLocked(cluster, store)
	if !ok {
		return fmt.Errorf("backend: store %s/%s not found", cluster, store)
	}
	mutate(info)
	return nil
}

func (f *Fake) SetStoreWriteability(cluster, store string, enabled bool) error {
	return f.mutate("SetStoreWriteability", cluster, store, func(i *StoreInfo) { i.WritesEnabled = enabled })
}

func (f *Fake) SetStoreReadability(cluster, store string, enabled bool) error {
	return f.mutate("SetStoreReadability", cluster, store, func(i *StoreInfo) { i.ReadsEnabled = enabled })
}

func (f *Fake) SetStoreCurrentVersion(cluster, store string, version int32) error {
	return f.mutate("SetStoreCurrentVersion", cluster, store, func(i *StoreInfo) {
		if version != admin.IgnoredCurrentVersion {
			i.CurrentVersion = version
		}
	})
}

func (f *Fake) SetStoreOwner(cluster, store, owner string) error {
	return f.mutate("SetStoreOwner", cluster, store, func(i *StoreInfo) { i.Owner = owner })
}

func (f *Fake) SetStorePartitionCount(cluster, store string, count int) error {
	return f.mutate("SetStorePartitionCount", cluster, store, func(i *StoreInfo) { i.PartitionCount = count })
}

func (f *Fake) UpdateStore(cluster, store string, params admin.UpdateStoreParams) error {
	return f.mutate("UpdateStore", cluster, store, func(i *StoreInfo) {
		if params.Owner != nil {
			i.Owner = *params.Owner
		}
		if params.PartitionCount != nil {
			i.PartitionCount = *params.PartitionCount
		}
		if params.CurrentVersion != nil && *params.CurrentVersion != admin.IgnoredCurrentVersion {
			i.CurrentVersion = *params.CurrentVersion
		}
		if params.EnableReads != nil {
			i.ReadsEnabled = *params.EnableReads
		}
		if params.EnableWrites != nil {
			i.WritesEnabled = *params.EnableWrites
		}
	})
}

func (f *Fake) AddValueSchema(cluster, store string, schema admin.SchemaPayload) error {
	return f.check("AddValueSchema", cluster, store)
}

func (f *Fake) AddDerivedSchema(cluster, store string, schema admin.SchemaPayload) error {
	return f.check("AddDerivedSchema", cluster, store)
}

func (f *Fake) AddSupersetSchema(cluster, store string, schema admin.SchemaPayload) error {
	return f.check("AddSupersetSchema", cluster, store)
}

func (f *Fake) DeleteAllVersionsInStore(cluster, store string) error {
	return f.check("DeleteAllVersionsInStore", cluster, store)
}

func (f *Fake) DeleteOldVersionInStore(cluster, store string, version int32) error {
	return f.check("DeleteOldVersionInStore", cluster, store)
}

func (f *Fake) DematerializeMetadataStoreVersion(cluster, store string, version int32) error {
	return f.check("DematerializeMetadataStoreVersion", cluster, store)
}

func (f *Fake) MigrateStore(cluster, store, destCluster string) error {
	return f.mutate("MigrateStore", cluster, store, func(i *StoreInfo) { i.MigratingTo = destCluster })
}

func (f *Fake) SetStoreConfigForMigration(cluster, store, destCluster string) error {
	return f.check("SetStoreConfigForMigration", cluster, store)
}

func (f *Fake) AbortMigration(cluster, store, destCluster string) error {
	return f.mutate("AbortMigration", cluster, store, func(i *StoreInfo) { i.MigratingTo = "" })
}

func (f *Fake) ReplicateAddVersionAndStartIngestion(cluster, store string, version admin.VersionPayload) error {
	return f.check("ReplicateAddVersionAndStartIngestion", cluster, store)
}

func (f *Fake) AddVersionAndStartIngestion(cluster, store string, version admin.VersionPayload) error {
	return f.check("AddVersionAndStartIngestion", cluster, store)
}

func (f *Fake) NewZkSharedStoreVersion(cluster, store string, version admin.VersionPayload) error {
	return f.check("NewZkSharedStoreVersion", cluster, store)
}

func (f *Fake) MaterializeMetadataStoreVersion(cluster, store string, version admin.VersionPayload) error {
	return f.check("MaterializeMetadataStoreVersion", cluster, store)
}

func (f *Fake) KillOfflinePush(cluster, store, pushJobID string) error {
	return f.check("KillOfflinePush", cluster, store)
}

func (f *Fake) ReplicateUpdateStore(cluster, store string, params admin.UpdateStoreParams) error {
	return f.UpdateStore(cluster, store, params)
}
