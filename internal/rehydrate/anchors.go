package rehydrate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	rerr "github.com/TheMonk2121/rehydrate/internal/errors"
	"github.com/TheMonk2121/rehydrate/internal/store"
)

// Pin budget constants.
const (
	// DefaultPinsCeiling is the hard token ceiling for the pins section.
	DefaultPinsCeiling = 200

	// DefaultPinsBudgetMax is the token budget at stability 1.0.
	DefaultPinsBudgetMax = 300
)

// anchorsFile is the on-disk anchor seed format.
type anchorsFile struct {
	Anchors []anchorEntry `yaml:"anchors"`
}

type anchorEntry struct {
	Role     string `yaml:"role"`
	Key      string `yaml:"key"`
	Priority int    `yaml:"priority"`
	Text     string `yaml:"text"`
}

// LoadAnchorsFile parses an anchors YAML file into pins. Token counts
// are estimated at load time so budget packing never re-tokenizes.
func LoadAnchorsFile(path string) ([]*store.AnchorPin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchors file: %w", err)
	}

	var file anchorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse anchors file %s: %w", path, err)
	}

	pins := make([]*store.AnchorPin, 0, len(file.Anchors))
	for i, a := range file.Anchors {
		if a.Role == "" || a.Key == "" {
			return nil, fmt.Errorf("anchor %d: role and key are required", i)
		}
		pins = append(pins, &store.AnchorPin{
			Key:      a.Key,
			Role:     a.Role,
			Priority: a.Priority,
			Text:     a.Text,
			Tokens:   store.EstimateTokens(a.Text),
		})
	}

	return pins, nil
}

// AnchorRegistry serves role-keyed anchor pins from the metadata store
// and applies the stability-scaled token budget.
type AnchorRegistry struct {
	meta store.MetadataStore

	mu    sync.RWMutex
	roles map[string]bool

	pinsCeiling   int
	pinsBudgetMax int
}

// NewAnchorRegistry creates a registry. roles lists the valid role names;
// ceiling and budgetMax <= 0 use defaults.
func NewAnchorRegistry(meta store.MetadataStore, roles []string, ceiling, budgetMax int) *AnchorRegistry {
	if ceiling <= 0 {
		ceiling = DefaultPinsCeiling
	}
	if budgetMax <= 0 {
		budgetMax = DefaultPinsBudgetMax
	}

	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return &AnchorRegistry{
		meta:          meta,
		roles:         roleSet,
		pinsCeiling:   ceiling,
		pinsBudgetMax: budgetMax,
	}
}

// KnownRole reports whether the role is registered.
func (r *AnchorRegistry) KnownRole(role string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[role]
}

// RoleNames returns registered roles in sorted order.
func (r *AnchorRegistry) RoleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PinBudget returns the token ceiling for pins at the given stability:
// min(pinsCeiling, round(stability * pinsBudgetMax)).
func (r *AnchorRegistry) PinBudget(stability float64) int {
	scaled := int(math.Round(stability * float64(r.pinsBudgetMax)))
	if scaled > r.pinsCeiling {
		return r.pinsCeiling
	}
	return scaled
}

// PinsForRole returns the role's pins within the stability budget, in
// priority order. Admission stops at the first pin that does not fit;
// it and everything after it are dropped, so a low-priority pin never
// displaces a higher one. dropped is the number removed.
func (r *AnchorRegistry) PinsForRole(ctx context.Context, role string, stability float64) (pins []PackedPin, dropped int, err error) {
	if !r.KnownRole(role) {
		return nil, 0, rerr.UnknownRole(role)
	}

	anchors, err := r.meta.AnchorsForRole(ctx, role)
	if err != nil {
		return nil, 0, err
	}

	budget := r.PinBudget(stability)
	used := 0

	for i, a := range anchors {
		if used+a.Tokens > budget {
			dropped = len(anchors) - i
			break
		}
		used += a.Tokens
		pins = append(pins, PackedPin{
			Key:      a.Key,
			Priority: a.Priority,
			Text:     a.Text,
			Tokens:   a.Tokens,
		})
	}

	return pins, dropped, nil
}

// ReloadFromFile replaces the stored anchor registry with the file's
// contents. Roles in the file become registered roles alongside the
// configured set.
func (r *AnchorRegistry) ReloadFromFile(ctx context.Context, path string) error {
	pins, err := LoadAnchorsFile(path)
	if err != nil {
		return err
	}

	if err := r.meta.ReplaceAnchors(ctx, pins); err != nil {
		return fmt.Errorf("failed to replace anchors: %w", err)
	}

	roles := make(map[string]bool)
	for _, p := range pins {
		roles[p.Role] = true
	}

	r.mu.Lock()
	for role := range roles {
		r.roles[role] = true
	}
	r.mu.Unlock()

	slog.Info("anchors_reloaded",
		slog.String("path", path),
		slog.Int("pins", len(pins)),
		slog.Int("roles", len(roles)))

	return nil
}

// WatchFile hot-reloads anchors when the file changes. Blocks until ctx
// is cancelled. Editors replace files via rename, so the parent
// directory is watched rather than the file itself.
func (r *AnchorRegistry) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create anchors watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := r.ReloadFromFile(ctx, path); err != nil {
				slog.Warn("anchors_reload_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("anchors_watcher_error", slog.String("error", err.Error()))
		}
	}
}
