// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package indexbuild

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
)

var mon = monkit.Package()

// indexKey identifies one index's build slot.
type indexKey struct {
	NamespaceID, DatabaseID, TableID, IndexID uint64
}

func (k indexKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", k.NamespaceID, k.DatabaseID, k.TableID, k.IndexID)
}

// Registry is the process-wide home for in-flight index builds. It
// enforces spec.md §4.7's "at most one active build per index
// definition" rule.
type Registry struct {
	store storage.Store
	log   *zap.Logger

	mu     sync.Mutex
	builds map[indexKey]*build
}

// NewRegistry creates an empty build registry over store. Every build
// this registry starts opens its own transactions directly against
// store, independent of whatever transaction triggered the build.
func NewRegistry(store storage.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log, builds: make(map[indexKey]*build)}
}

// Build starts building ix on table tbID, unless one is already active
// for it. If blocking, the returned channel closes when the build
// terminates (Ready, Aborted, or Error); otherwise the build still runs
// in the background but the returned channel is nil.
func (r *Registry) Build(ctx context.Context, nsID, dbID, tbID uint64, ix catalog.Index, computer ValueComputer, blocking bool) (done <-chan struct{}, err error) {
	defer mon.Task()(&ctx)(&err)

	key := indexKey{nsID, dbID, tbID, ix.ID}

	r.mu.Lock()
	if existing, ok := r.builds[key]; ok && !existing.terminal() {
		r.mu.Unlock()
		return nil, errs2.IndexBuilding.New("index %q is already building", ix.Name)
	}
	b := newBuild(key, ix, computer, r.store, r.log)
	r.builds[key] = b
	r.mu.Unlock()

	go b.run(context.Background())

	if blocking {
		return b.done, nil
	}
	return nil, nil
}

// Consume routes a writer's delta to the active build for this index,
// if any. With no build ever started for it, it reports Ignored so the
// caller indexes synchronously.
func (r *Registry) Consume(ctx context.Context, tx *kvs.Transaction, nsID, dbID, tbID, ixID uint64, ridKey, oldValues, newValues []byte) (outcome Outcome, err error) {
	defer mon.Task()(&ctx)(&err)

	key := indexKey{nsID, dbID, tbID, ixID}
	r.mu.Lock()
	b, ok := r.builds[key]
	r.mu.Unlock()
	if !ok {
		return Ignored, nil
	}
	return b.consume(ctx, tx, ridKey, oldValues, newValues)
}

// GetStatus reports the current progress of ix's build, if one has ever
// been started for it.
func (r *Registry) GetStatus(nsID, dbID, tbID, ixID uint64) (Progress, bool) {
	key := indexKey{nsID, dbID, tbID, ixID}
	r.mu.Lock()
	b, ok := r.builds[key]
	r.mu.Unlock()
	if !ok {
		return Progress{}, false
	}
	return b.snapshot(), true
}

// RemoveIndex aborts any in-flight build for ix. Callers invoke this
// before catalog.Accessor.RemoveIndex tears down the index's
// definition and data.
func (r *Registry) RemoveIndex(nsID, dbID, tbID, ixID uint64) {
	key := indexKey{nsID, dbID, tbID, ixID}
	r.mu.Lock()
	b, ok := r.builds[key]
	r.mu.Unlock()
	if ok {
		b.abort()
	}
}
