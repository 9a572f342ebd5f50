// Package catalog owns application groups, their applications and the
// history of published configuration versions. Every mutation re-reads the
// persisted record under the lock derived from the mutated entity, so
// several server instances sharing a store and a coordinator do not lose
// each other's writes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/veesix-networks/zconfig/pkg/component"
	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/entity"
	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/logger"
	"github.com/veesix-networks/zconfig/pkg/opdb"
)

type Options struct {
	Locker   *lock.Locker
	Store    opdb.Store
	IDs      entity.IDGenerator
	Instance string
}

type Catalog struct {
	*component.Base

	logger   *slog.Logger
	locker   *lock.Locker
	store    opdb.Store
	ids      entity.IDGenerator
	instance string

	mu     sync.RWMutex
	groups map[string]*entity.ApplicationGroup
}

var _ opdb.Provider = (*Catalog)(nil)

func New(opts Options) *Catalog {
	return &Catalog{
		Base:     component.NewBase("catalog"),
		logger:   logger.Get(logger.Catalog),
		locker:   opts.Locker,
		store:    opts.Store,
		ids:      opts.IDs,
		instance: opts.Instance,
		groups:   make(map[string]*entity.ApplicationGroup),
	}
}

// NewFromDeps builds a catalog on the environment's locker, store and
// identity generator.
func NewFromDeps(deps component.Dependencies) *Catalog {
	return New(Options{
		Locker:   deps.Env.Locker,
		Store:    deps.Env.Store,
		IDs:      deps.Env.IDs,
		Instance: deps.Env.Instance.Name,
	})
}

func (c *Catalog) Start(ctx context.Context) error {
	c.StartContext(ctx)
	c.logger.Info("Starting catalog")

	reg := opdb.NewProviderRegistry()
	reg.Register(c)
	if err := reg.RestoreAll(ctx, c.store); err != nil {
		return err
	}
	return nil
}

func (c *Catalog) Stop(ctx context.Context) error {
	c.logger.Info("Stopping catalog")
	c.StopContext()
	return nil
}

func (c *Catalog) Namespaces() []string {
	return []string{opdb.NamespaceGroups, opdb.NamespaceConfigurations}
}

// Restore replaces the cached groups with the persisted ones.
func (c *Catalog) Restore(ctx context.Context, store opdb.Store) error {
	groups, err := loadGroups(ctx, store)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.groups = groups
	c.mu.Unlock()

	versions, err := store.Count(ctx, opdb.NamespaceConfigurations)
	if err != nil {
		return fmt.Errorf("count histories: %w", err)
	}
	c.logger.Info("Restored catalog", "groups", len(groups), "histories", versions)
	return nil
}

// Group returns a detached copy of the cached group. Edits to the copy take
// effect through UpdateGroup.
func (c *Catalog) Group(id string) (*entity.ApplicationGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[id]
	if !ok {
		return nil, false
	}
	return snapshot(g), true
}

func (c *Catalog) GroupByName(name string) (*entity.ApplicationGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.groups {
		if g.Name() == name {
			return snapshot(g), true
		}
	}
	return nil, false
}

// Groups returns detached copies ordered by identity.
func (c *Catalog) Groups() []*entity.ApplicationGroup {
	c.mu.RLock()
	out := make([]*entity.ApplicationGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, snapshot(g))
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *entity.ApplicationGroup) int { return a.CompareKey(b) })
	return out
}

// CreateGroup runs under the system lock because it changes the set of group
// names.
func (c *Catalog) CreateGroup(ctx context.Context, name, modifier string) (*entity.ApplicationGroup, error) {
	var created *entity.ApplicationGroup
	err := c.locker.WithSystemLock(ctx, func(ctx context.Context) error {
		groups, err := loadGroups(ctx, c.store)
		if err != nil {
			return err
		}
		if nameTaken(groups, name, "") {
			return fmt.Errorf("%w: %s", ErrGroupExists, name)
		}

		g, err := entity.NewApplicationGroup(ctx, c.ids, name)
		if err != nil {
			return err
		}
		g.SetCreatedBy(modifier)
		if err := c.putGroup(ctx, g); err != nil {
			return err
		}
		created = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Created group", "group", name, "id", created.ID(), "by", modifier)
	return snapshot(created), nil
}

// UpdateGroup merges the mutable attributes of edited into the stored group
// with the same identity. A rename also takes the system lock and the lock of
// the new name.
func (c *Catalog) UpdateGroup(ctx context.Context, edited *entity.ApplicationGroup, modifier string) (*entity.ApplicationGroup, error) {
	if edited == nil {
		return nil, &entity.EntityError{Err: fmt.Errorf("%w: nil group", entity.ErrInvalidArgument)}
	}
	current, err := c.storedGroup(ctx, edited.ID())
	if err != nil {
		return nil, err
	}

	var updated *entity.ApplicationGroup
	update := func(rename bool) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			return c.lockGroup(ctx, edited.ID(), func(ctx context.Context, g *entity.ApplicationGroup) error {
				if g.Name() == edited.Name() {
					return c.applyUpdate(ctx, g, edited, modifier, &updated)
				}
				if !rename {
					return errRenameUnlocked
				}
				groups, err := loadGroups(ctx, c.store)
				if err != nil {
					return err
				}
				if nameTaken(groups, edited.Name(), g.ID()) {
					return fmt.Errorf("%w: %s", ErrGroupExists, edited.Name())
				}
				return c.locker.WithEntityLock(ctx, edited, func(ctx context.Context) error {
					return c.applyUpdate(ctx, g, edited, modifier, &updated)
				})
			})
		}
	}

	if current.Name() == edited.Name() {
		err = update(false)(ctx)
	}
	if current.Name() != edited.Name() || errors.Is(err, errRenameUnlocked) {
		err = c.locker.WithSystemLock(ctx, update(true))
	}
	if err != nil {
		return nil, err
	}

	logger.WithEntity(c.logger, logger.EntityAttrs{Group: updated.Name()}).Info("Updated group", "id", updated.ID(), "by", modifier)
	return snapshot(updated), nil
}

func (c *Catalog) applyUpdate(ctx context.Context, g, edited *entity.ApplicationGroup, modifier string, out **entity.ApplicationGroup) error {
	if err := g.CopyChanges(edited); err != nil {
		return err
	}
	g.Touch(modifier)
	if err := c.putGroup(ctx, g); err != nil {
		return err
	}
	*out = g
	return nil
}

// CloneGroup copies a group and its applications under fresh identities. An
// empty clone name defaults to "<name>-copy".
func (c *Catalog) CloneGroup(ctx context.Context, id string, cc entity.CloneContext) (*entity.ApplicationGroup, error) {
	var clone *entity.ApplicationGroup
	err := c.locker.WithSystemLock(ctx, func(ctx context.Context) error {
		groups, err := loadGroups(ctx, c.store)
		if err != nil {
			return err
		}
		src, ok := groups[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
		}
		if cc.Name == "" {
			cc.Name = src.Name() + "-copy"
		}
		if nameTaken(groups, cc.Name, "") {
			return fmt.Errorf("%w: %s", ErrGroupExists, cc.Name)
		}

		g, err := src.Clone(ctx, c.ids, &cc)
		if err != nil {
			return err
		}
		if err := c.putGroup(ctx, g); err != nil {
			return err
		}
		clone = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Cloned group", "source", id, "group", clone.Name(), "id", clone.ID(), "applications", len(clone.Applications()))
	return snapshot(clone), nil
}

func (c *Catalog) RemoveGroup(ctx context.Context, id string) error {
	err := c.locker.WithSystemLock(ctx, func(ctx context.Context) error {
		g, err := c.storedGroup(ctx, id)
		if err != nil {
			return err
		}
		if err := c.store.Delete(ctx, opdb.NamespaceGroups, id); err != nil {
			return fmt.Errorf("delete group %s: %w", g.Name(), err)
		}
		c.mu.Lock()
		delete(c.groups, id)
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("Removed group", "id", id)
	return nil
}

func (c *Catalog) AddApplication(ctx context.Context, groupID, name, modifier string) (*entity.Application, error) {
	var added *entity.Application
	err := c.withGroup(ctx, groupID, func(ctx context.Context, g *entity.ApplicationGroup) error {
		app, err := entity.NewApplication(ctx, c.ids, name)
		if err != nil {
			return err
		}
		app.SetCreatedBy(modifier)
		if err := g.AddApplication(app); err != nil {
			return err
		}
		g.Touch(modifier)
		added = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithEntity(c.logger, logger.EntityAttrs{Group: added.Group().Name(), Application: name}).
		Info("Added application", "id", added.ID(), "by", modifier)
	return added, nil
}

func (c *Catalog) RemoveApplication(ctx context.Context, groupID, name, modifier string) error {
	err := c.withGroup(ctx, groupID, func(ctx context.Context, g *entity.ApplicationGroup) error {
		if _, ok := g.RemoveApplication(name); !ok {
			return fmt.Errorf("%w: %s in %s", ErrApplicationNotFound, name, g.Name())
		}
		g.Touch(modifier)
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("Removed application", "group", groupID, "application", name, "by", modifier)
	return nil
}

// EnsureApplication registers the named group and application when they do
// not exist yet. An empty application name only ensures the group.
func (c *Catalog) EnsureApplication(ctx context.Context, groupName, appName, modifier string) error {
	g, ok := c.GroupByName(groupName)
	if !ok {
		var err error
		g, err = c.CreateGroup(ctx, groupName, modifier)
		if errors.Is(err, ErrGroupExists) {
			if err = c.Restore(ctx, c.store); err == nil {
				g, ok = c.GroupByName(groupName)
				if !ok {
					err = fmt.Errorf("%w: %s", ErrGroupNotFound, groupName)
				}
			}
		}
		if err != nil {
			return err
		}
	}
	if appName == "" || g.Application(appName) != nil {
		return nil
	}
	_, err := c.AddApplication(ctx, g.ID(), appName, modifier)
	if errors.Is(err, entity.ErrDuplicateApplication) {
		return nil
	}
	return err
}

// withGroup runs fn on the stored group under the group lock and persists the
// result when fn succeeds.
func (c *Catalog) withGroup(ctx context.Context, id string, fn func(ctx context.Context, g *entity.ApplicationGroup) error) error {
	return c.lockGroup(ctx, id, func(ctx context.Context, g *entity.ApplicationGroup) error {
		if err := fn(ctx, g); err != nil {
			return err
		}
		return c.putGroup(ctx, g)
	})
}

// lockGroup runs fn on the stored group while holding the lock of the name
// the group has under that lock. The lock path is derived from a read taken
// before acquiring, so a rename that lands in between is detected and the
// lock is taken again under the new name.
func (c *Catalog) lockGroup(ctx context.Context, id string, fn func(ctx context.Context, g *entity.ApplicationGroup) error) error {
	for attempt := 1; ; attempt++ {
		current, err := c.storedGroup(ctx, id)
		if err != nil {
			return err
		}

		renamed := ""
		err = c.locker.WithEntityLock(ctx, current, func(ctx context.Context) error {
			g, err := c.storedGroup(ctx, id)
			if err != nil {
				return err
			}
			if g.Name() != current.Name() {
				renamed = g.Name()
				return nil
			}
			return fn(ctx, g)
		})
		if err != nil || renamed == "" {
			return err
		}
		if attempt >= maxRelockAttempts {
			return fmt.Errorf("%w: %s renamed from %s to %s", ErrGroupMoving, id, current.Name(), renamed)
		}
		c.logger.Debug("Group renamed while locking, retrying", "id", id, "from", current.Name(), "to", renamed)
	}
}

// PublishConfiguration marks cfg loaded and appends it to the history of its
// path. It runs under the configuration lock for cfg's major version and
// rejects a version that is not newer than the latest one of that major.
func (c *Catalog) PublishConfiguration(ctx context.Context, cfg *confnode.Configuration, modifier string) (VersionRecord, error) {
	if cfg == nil {
		return VersionRecord{}, &confnode.ConfigurationError{Err: fmt.Errorf("%w: nil configuration", confnode.ErrInvalidArgument)}
	}
	if err := c.checkOwner(cfg.Header()); err != nil {
		return VersionRecord{}, err
	}

	v := cfg.Version()
	path := cfg.AbsolutePath()
	log := logger.WithEntity(c.logger, logger.EntityAttrs{
		Group:         cfg.Header().Group,
		Application:   cfg.Header().Application,
		Configuration: cfg.Name(),
		Version:       v.String(),
	})

	var rec VersionRecord
	err := c.locker.WithConfigurationLock(ctx, cfg, v.Major, func(ctx context.Context) error {
		key := historyKey(path, v.Major)
		history, err := c.loadHistory(ctx, key)
		if err != nil {
			return err
		}
		if n := len(history); n > 0 && history[n-1].Version.Compare(v) >= 0 {
			return fmt.Errorf("%w: %s has %s, got %s", ErrStaleVersion, path, history[n-1].Version, v)
		}

		if err := cfg.MarkLoaded(); err != nil {
			return err
		}

		rec = newVersionRecord(cfg, c.instance, modifier)
		history = append(history, rec)
		data, err := yaml.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode history %s: %w", key, err)
		}
		return c.store.Put(ctx, opdb.NamespaceConfigurations, key, data)
	})
	if err != nil {
		log.Warn("Failed to publish configuration", "error", err)
		return VersionRecord{}, err
	}

	log.Info("Published configuration", "path", path, "resources", len(rec.Resources), "by", modifier)
	return rec, nil
}

func newVersionRecord(cfg *confnode.Configuration, instance, modifier string) VersionRecord {
	h := cfg.Header()
	rec := VersionRecord{
		Name:        cfg.Name(),
		Path:        cfg.AbsolutePath(),
		Version:     cfg.Version(),
		ID:          h.ID,
		Group:       h.Group,
		Application: h.Application,
		Description: h.Description,
		Instance:    instance,
	}
	if modifier != "" {
		rec.PublishedBy = confnode.ModifiedBy{Modifier: modifier, Timestamp: nowUTC()}
	}
	for _, r := range cfg.Resources() {
		if u := r.Location(); u != nil {
			rec.Resources = append(rec.Resources, u.String())
		}
	}
	return rec
}

// checkOwner requires a named group and application to exist in the cache.
func (c *Catalog) checkOwner(h confnode.Header) error {
	if h.Group == "" {
		return nil
	}
	g, ok := c.GroupByName(h.Group)
	if !ok {
		return fmt.Errorf("%w: group %s", ErrUnregistered, h.Group)
	}
	if h.Application != "" && g.Application(h.Application) == nil {
		return fmt.Errorf("%w: application %s in group %s", ErrUnregistered, h.Application, h.Group)
	}
	return nil
}

// History returns every published version of the configuration at path,
// oldest first.
func (c *Catalog) History(ctx context.Context, path string) ([]VersionRecord, error) {
	var out []VersionRecord
	err := c.store.Load(ctx, opdb.NamespaceConfigurations, func(key string, value []byte) error {
		p, _, err := splitHistoryKey(key)
		if err != nil {
			c.logger.Warn("Skipping history record", "key", key, "error", err)
			return nil
		}
		if p != path {
			return nil
		}
		var recs []VersionRecord
		if err := yaml.Unmarshal(value, &recs); err != nil {
			return fmt.Errorf("decode history %s: %w", key, err)
		}
		out = append(out, recs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version.Compare(out[j].Version) < 0 })
	return out, nil
}

// Latest returns the newest published version at path.
func (c *Catalog) Latest(ctx context.Context, path string) (VersionRecord, bool, error) {
	h, err := c.History(ctx, path)
	if err != nil || len(h) == 0 {
		return VersionRecord{}, false, err
	}
	return h[len(h)-1], true, nil
}

func (c *Catalog) loadHistory(ctx context.Context, key string) ([]VersionRecord, error) {
	data, err := c.store.Get(ctx, opdb.NamespaceConfigurations, key)
	if errors.Is(err, opdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []VersionRecord
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", key, err)
	}
	return recs, nil
}

func (c *Catalog) storedGroup(ctx context.Context, id string) (*entity.ApplicationGroup, error) {
	data, err := c.store.Get(ctx, opdb.NamespaceGroups, id)
	if errors.Is(err, opdb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeGroup(id, data)
}

// putGroup persists g and refreshes the cache with a private copy.
func (c *Catalog) putGroup(ctx context.Context, g *entity.ApplicationGroup) error {
	data, err := yaml.Marshal(g.Record())
	if err != nil {
		return fmt.Errorf("encode group %s: %w", g.Name(), err)
	}
	if err := c.store.Put(ctx, opdb.NamespaceGroups, g.ID(), data); err != nil {
		return fmt.Errorf("store group %s: %w", g.Name(), err)
	}
	c.mu.Lock()
	c.groups[g.ID()] = snapshot(g)
	c.mu.Unlock()
	return nil
}

func loadGroups(ctx context.Context, store opdb.Store) (map[string]*entity.ApplicationGroup, error) {
	groups := make(map[string]*entity.ApplicationGroup)
	err := store.Load(ctx, opdb.NamespaceGroups, func(key string, value []byte) error {
		g, err := decodeGroup(key, value)
		if err != nil {
			return err
		}
		groups[g.ID()] = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func decodeGroup(key string, data []byte) (*entity.ApplicationGroup, error) {
	var rec entity.GroupRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", key, err)
	}
	return entity.GroupFromRecord(rec)
}

func nameTaken(groups map[string]*entity.ApplicationGroup, name, exceptID string) bool {
	for id, g := range groups {
		if id != exceptID && g.Name() == name {
			return true
		}
	}
	return false
}

// snapshot copies g through its persisted form so callers never share
// mutable state with the cache.
func snapshot(g *entity.ApplicationGroup) *entity.ApplicationGroup {
	cp, err := entity.GroupFromRecord(g.Record())
	if err != nil {
		// A cached group always has a valid record.
		panic(err)
	}
	return cp
}
