package nav

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"golang.org/x/text/language"
)

// Store is the persistence capability the resolver reads and caches through.
type Store interface {
	GetUserTypeID(ctx context.Context, userID int64) (int64, error)
	ListMenusForPermissions(ctx context.Context, permissionIDs []int64) ([]Menu, error)
	GetUserTypeConfig(ctx context.Context, userTypeID int64) (json.RawMessage, error)
	SaveUserTypeConfig(ctx context.Context, userTypeID int64, blob json.RawMessage) error
	ClearAllUserTypeConfigs(ctx context.Context) (int64, error)
}

// PermissionSource resolves the effective permission ids for a user.
type PermissionSource interface {
	ResolveIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Defaults seed the portal configuration blob the first time a navigation
// tree is cached for a user type.
type Defaults struct {
	Theme       string
	LandingPage string
	Language    string
}

// Resolver computes the permission-gated navigation tree.
//
// The computed tree is cached in the UserType configuration blob, keyed by
// user type rather than by user: the first user of a type to trigger the
// computation decides what every other user of that type sees until the
// cache is cleared. This mirrors the portal's type-level navigation model.
type Resolver struct {
	store    Store
	perms    PermissionSource
	defaults Defaults
	logger   *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(store Store, perms PermissionSource, defaults Defaults, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.Theme == "" {
		defaults.Theme = "default"
	}
	if defaults.LandingPage == "" {
		defaults.LandingPage = "/dashboard"
	}
	defaults.Language = normalizeLanguage(defaults.Language)
	return &Resolver{store: store, perms: perms, defaults: defaults, logger: logger}
}

// BuildNavigation returns the navigation tree for the user, looking the user
// type up first.
func (r *Resolver) BuildNavigation(ctx context.Context, userID int64) ([]Node, error) {
	userTypeID, err := r.store.GetUserTypeID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.BuildNavigationForType(ctx, userID, userTypeID)
}

// BuildNavigationForType serves the cached tree for the user type when one
// exists; otherwise it computes the tree from the user's permissions and
// persists it into the type's configuration blob.
func (r *Resolver) BuildNavigationForType(ctx context.Context, userID, userTypeID int64) ([]Node, error) {
	if cached, ok := r.cachedTree(ctx, userTypeID); ok {
		return cached, nil
	}

	tree, err := r.compute(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		tree = []Node{}
	}

	cfg := PortalConfig{
		Theme:       r.defaults.Theme,
		LandingPage: r.defaults.LandingPage,
		Language:    r.defaults.Language,
		Navigation:  tree,
	}
	blob, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveUserTypeConfig(ctx, userTypeID, blob); err != nil {
		// Serving the freshly computed tree beats failing the request.
		r.logger.Warn("cache navigation", slog.Any("error", err), slog.Int64("user_type", userTypeID))
	}
	return tree, nil
}

// RefreshAll clears every cached blob; the next read per type recomputes.
func (r *Resolver) RefreshAll(ctx context.Context) (int64, error) {
	return r.store.ClearAllUserTypeConfigs(ctx)
}

func (r *Resolver) cachedTree(ctx context.Context, userTypeID int64) ([]Node, bool) {
	blob, err := r.store.GetUserTypeConfig(ctx, userTypeID)
	if err != nil || len(blob) == 0 || string(blob) == "null" {
		return nil, false
	}
	var cfg PortalConfig
	if err := json.Unmarshal(blob, &cfg); err != nil {
		r.logger.Warn("decode navigation cache", slog.Any("error", err), slog.Int64("user_type", userTypeID))
		return nil, false
	}
	if cfg.Navigation == nil {
		return nil, false
	}
	return cfg.Navigation, true
}

func (r *Resolver) compute(ctx context.Context, userID int64) ([]Node, error) {
	permissionIDs, err := r.perms.ResolveIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	var menus []Menu
	if len(permissionIDs) > 0 {
		menus, err = r.store.ListMenusForPermissions(ctx, permissionIDs)
		if err != nil {
			return nil, err
		}
	}

	visible := menus[:0]
	for _, menu := range menus {
		if menu.IsActive {
			visible = append(visible, menu)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].DisplayOrder != visible[j].DisplayOrder {
			return visible[i].DisplayOrder < visible[j].DisplayOrder
		}
		return visible[i].ID < visible[j].ID
	})
	return buildTree(visible, nil), nil
}

// buildTree selects the nodes whose parent matches the current level and
// recurses into their children. Leaves carry a nil Children slice so the
// cached JSON form round-trips identically.
func buildTree(menus []Menu, parentID *int64) []Node {
	var nodes []Node
	for _, menu := range menus {
		if !sameParent(menu.ParentID, parentID) {
			continue
		}
		id := menu.ID
		nodes = append(nodes, Node{
			ID:       menu.ID,
			Label:    menu.Label,
			Icon:     menu.Icon,
			Route:    menu.Route,
			IsGroup:  menu.IsGroup,
			Children: buildTree(menus, &id),
		})
	}
	return nodes
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// normalizeLanguage folds a configured language into a canonical BCP 47 tag,
// falling back to English when unparsable.
func normalizeLanguage(lang string) string {
	if lang == "" {
		return language.English.String()
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English.String()
	}
	return tag.String()
}
