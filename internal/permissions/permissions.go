package permissions

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidPath = errors.New("invalid permission path")

// Path addresses a single flag in a Tree, e.g. {"contacts", "write"}
type Path struct {
	Section string
	Action  string
}

func (p Path) String() string {
	return p.Section + "." + p.Action
}

// ParsePath parses "section.action"
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Path{}, errors.Wrapf(ErrInvalidPath, "%q", s)
	}
	return Path{Section: parts[0], Action: parts[1]}, nil
}

// MustPath is ParsePath for constant paths
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Tree maps section -> action -> granted. Treat it as immutable and update
// it through With.
type Tree map[string]map[string]bool

// Allowed reports whether the flag at p is set
func (t Tree) Allowed(p Path) bool {
	return t[p.Section][p.Action]
}

// With returns a tree where only the flag at p differs. Sections other than
// p.Section are shared with t.
func (t Tree) With(p Path, granted bool) Tree {
	out := make(Tree, len(t)+1)
	for section, actions := range t {
		out[section] = actions
	}
	actions := make(map[string]bool, len(t[p.Section])+1)
	for action, v := range t[p.Section] {
		actions[action] = v
	}
	actions[p.Action] = granted
	out[p.Section] = actions
	return out
}

// Granted lists every enabled path, sorted
func (t Tree) Granted() []string {
	var out []string
	for section, actions := range t {
		for action, v := range actions {
			if v {
				out = append(out, Path{section, action}.String())
			}
		}
	}
	sort.Strings(out)
	return out
}

// FromGranted builds a tree from "section.action" strings
func FromGranted(paths []string) (Tree, error) {
	t := Tree{}
	for _, s := range paths {
		p, err := ParsePath(s)
		if err != nil {
			return nil, err
		}
		t = t.With(p, true)
	}
	return t, nil
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var (
	ContactsRead   = MustPath("contacts.read")
	ContactsWrite  = MustPath("contacts.write")
	TemplatesRead  = MustPath("templates.read")
	TemplatesWrite = MustPath("templates.write")
	CampaignsRead  = MustPath("campaigns.read")
	CampaignsWrite = MustPath("campaigns.write")
	ChannelsRead   = MustPath("channels.read")
	ChannelsWrite  = MustPath("channels.write")
	WidgetRead     = MustPath("widget.read")
	WidgetWrite    = MustPath("widget.write")
)

// DefaultTree returns the permission set a role starts with
func DefaultTree(role string) Tree {
	read := []Path{ContactsRead, TemplatesRead, CampaignsRead, ChannelsRead, WidgetRead}
	write := []Path{ContactsWrite, TemplatesWrite, CampaignsWrite, ChannelsWrite, WidgetWrite}

	t := Tree{}
	for _, p := range read {
		t = t.With(p, true)
	}
	switch role {
	case RoleAdmin:
		for _, p := range write {
			t = t.With(p, true)
		}
	case RoleMember:
		t = t.With(ContactsWrite, true).With(CampaignsWrite, true)
	}
	return t
}

// Principal is the authenticated caller of a request
type Principal struct {
	AccountID   string
	UserID      string
	Email       string
	Role        string
	Permissions Tree
}

// Can reports whether the principal holds p
func (p Principal) Can(path Path) bool {
	return p.Permissions.Allowed(path)
}

type principalKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
