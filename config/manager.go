package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/natsclient"
)

// bucketName is the NATS JetStream KV bucket holding every category's
// current content, one key per category ("categories.filterPipeline",
// "categories.storage", "categories.perfmon").
const bucketName = "fledge_config"

// CategoryManager watches the config KV bucket and fans out validated
// category updates to subscribers. It replaces the teacher's generic
// service/component config manager: there is no file/KV version
// reconciliation here because there is no file-based config document to
// reconcile against — categories live in KV exclusively and default to
// hardcoded content on first boot (see DefaultContent).
type CategoryManager struct {
	kv      jetstream.KeyValue
	kvStore *natsclient.KVStore
	logger  *slog.Logger

	mu          sync.RWMutex
	subscribers map[Category][]chan Update

	watcher    jetstream.KeyWatcher
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// NewCategoryManager creates a CategoryManager backed by the given NATS
// client, creating the config KV bucket if it doesn't already exist.
func NewCategoryManager(ctx context.Context, natsClient *natsclient.Client, logger *slog.Logger) (*CategoryManager, error) {
	if natsClient == nil {
		return nil, fmt.Errorf("nats client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	kv, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "edge pipeline configuration categories",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "CategoryManager", "NewCategoryManager", "create/get KV bucket")
	}

	return &CategoryManager{
		kv:          kv,
		kvStore:     natsClient.NewKVStore(kv),
		subscribers: make(map[Category][]chan Update),
		logger:      logger,
	}, nil
}

// OnChange subscribes to updates for a single category. The returned
// channel receives the category's current content immediately (if any is
// present in KV) and every subsequent validated update. The channel is
// buffered by one; a subscriber that falls behind misses intermediate
// updates rather than blocking the watch loop.
func (cm *CategoryManager) OnChange(ctx context.Context, category Category) (<-chan Update, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("unknown config category %q", category)
	}

	ch := make(chan Update, 1)

	cm.mu.Lock()
	cm.subscribers[category] = append(cm.subscribers[category], ch)
	cm.mu.Unlock()

	entry, err := cm.kv.Get(ctx, category.kvKey())
	if err == nil {
		select {
		case ch <- Update{Category: category, Content: entry.Value(), Revision: entry.Revision()}:
		default:
		}
	}

	return ch, nil
}

// Start begins watching the config bucket for changes. Any category
// missing from KV is seeded with its default content first, so consumers
// always see a valid document on first boot.
func (cm *CategoryManager) Start(ctx context.Context) error {
	cm.shutdownCh = make(chan struct{})

	for _, category := range categories {
		if _, err := cm.kv.Get(ctx, category.kvKey()); err != nil {
			if seedErr := cm.seedDefault(ctx, category); seedErr != nil {
				cm.logger.Warn("failed to seed default category content",
					"category", category, "error", seedErr)
			}
		}
	}

	watcher, err := cm.kv.Watch(ctx, "categories.*", jetstream.UpdatesOnly())
	if err != nil {
		return errors.WrapTransient(err, "CategoryManager", "Start", "watch categories.*")
	}
	cm.watcher = watcher

	cm.wg.Add(1)
	go cm.processWatcher(ctx)

	return nil
}

// Stop stops watching for changes and closes every subscriber channel.
func (cm *CategoryManager) Stop(timeout time.Duration) error {
	if !cm.stopped.CompareAndSwap(false, true) {
		return nil
	}

	if cm.shutdownCh != nil {
		close(cm.shutdownCh)
	}
	if cm.watcher != nil {
		_ = cm.watcher.Stop()
	}

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		cm.logger.Warn("category manager shutdown timeout", "timeout", timeout)
	}

	cm.mu.Lock()
	for _, channels := range cm.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	cm.subscribers = make(map[Category][]chan Update)
	cm.mu.Unlock()

	return nil
}

func (cm *CategoryManager) processWatcher(ctx context.Context) {
	defer cm.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cm.shutdownCh:
			return
		case entry := <-cm.watcher.Updates():
			if entry == nil {
				continue
			}
			cm.handleUpdate(entry.Key(), entry.Value(), entry.Revision())
		}
	}
}

func (cm *CategoryManager) handleUpdate(key string, value []byte, revision uint64) {
	if cm.stopped.Load() {
		return
	}

	category, ok := categoryFromKey(key)
	if !ok {
		cm.logger.Debug("ignoring KV update outside known categories", "key", key)
		return
	}

	if err := ValidateCategory(category, value); err != nil {
		cm.logger.Error("rejected config category update", "category", category, "error", err)
		return
	}

	update := Update{Category: category, Content: value, Revision: revision}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ch := range cm.subscribers[category] {
		if cm.stopped.Load() {
			return
		}
		select {
		case ch <- update:
		default:
			// slow subscriber, drop rather than block the watch loop
		}
	}
}

// PushCategory validates content and writes it to the config KV bucket,
// where it will be picked up by the watch loop and fanned out like any
// other update. Used by administrative tooling to change a category's
// content out of band from the watch loop itself.
func (cm *CategoryManager) PushCategory(ctx context.Context, category Category, content []byte) error {
	if !category.IsValid() {
		return fmt.Errorf("unknown config category %q", category)
	}
	if err := ValidateCategory(category, content); err != nil {
		return err
	}
	_, err := cm.kvStore.Put(ctx, category.kvKey(), content)
	if err != nil {
		return errors.WrapTransient(err, "CategoryManager", "PushCategory", "put "+string(category))
	}
	return nil
}

func (cm *CategoryManager) seedDefault(ctx context.Context, category Category) error {
	content := DefaultContent(category)
	if err := ValidateCategory(category, content); err != nil {
		return fmt.Errorf("default content for %s is itself invalid: %w", category, err)
	}
	_, err := cm.kvStore.Put(ctx, category.kvKey(), content)
	return err
}
