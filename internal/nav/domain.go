package nav

// Menu is a navigation record. is_active=false nodes never render, and a
// node is only reachable through a permission granted via menu_permissions.
type Menu struct {
	ID           int64
	Label        string
	Icon         string
	Route        string
	DisplayOrder int
	IsGroup      bool
	ParentID     *int64
	IsActive     bool
}

// Node is one rendered navigation entry.
type Node struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	Icon     string `json:"icon,omitempty"`
	Route    string `json:"route,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// PortalConfig is the denormalized configuration blob stored per user type.
// The cached navigation tree lives alongside the portal defaults, keyed by
// user type rather than by user.
type PortalConfig struct {
	Theme       string `json:"theme"`
	LandingPage string `json:"landingPage"`
	Language    string `json:"language"`
	Navigation  []Node `json:"navigation"`
}
