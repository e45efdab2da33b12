package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	p, err := ParsePath("contacts.write")
	require.NoError(t, err)
	assert.Equal(t, Path{Section: "contacts", Action: "write"}, p)
	assert.Equal(t, "contacts.write", p.String())

	for _, bad := range []string{"", "contacts", "contacts.", ".write", "a.b.c"} {
		_, err := ParsePath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestTreeWith_DoesNotMutate(t *testing.T) {
	base := Tree{
		"contacts":  {"read": true},
		"templates": {"read": true},
	}
	updated := base.With(ContactsWrite, true)

	assert.False(t, base.Allowed(ContactsWrite))
	assert.True(t, updated.Allowed(ContactsWrite))
	assert.True(t, updated.Allowed(ContactsRead))

	// untouched sections are shared
	base["templates"]["write"] = true
	assert.True(t, updated.Allowed(TemplatesWrite))
}

func TestTreeWith_Revoke(t *testing.T) {
	tree := DefaultTree(RoleAdmin).With(ChannelsWrite, false)
	assert.False(t, tree.Allowed(ChannelsWrite))
	assert.True(t, tree.Allowed(ChannelsRead))
}

func TestDefaultTree(t *testing.T) {
	admin := DefaultTree(RoleAdmin)
	assert.True(t, admin.Allowed(TemplatesWrite))
	assert.True(t, admin.Allowed(WidgetWrite))

	member := DefaultTree(RoleMember)
	assert.True(t, member.Allowed(ContactsWrite))
	assert.True(t, member.Allowed(CampaignsWrite))
	assert.False(t, member.Allowed(TemplatesWrite))
	assert.False(t, member.Allowed(ChannelsWrite))

	viewer := DefaultTree("viewer")
	assert.True(t, viewer.Allowed(ContactsRead))
	assert.False(t, viewer.Allowed(ContactsWrite))
}

func TestGrantedRoundTrip(t *testing.T) {
	tree := DefaultTree(RoleMember)
	rebuilt, err := FromGranted(tree.Granted())
	require.NoError(t, err)
	assert.Equal(t, tree.Granted(), rebuilt.Granted())

	_, err = FromGranted([]string{"broken"})
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	p := Principal{AccountID: "acc-1", Role: RoleMember, Permissions: DefaultTree(RoleMember)}
	got, ok := FromContext(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.True(t, got.Can(ContactsWrite))
	assert.False(t, got.Can(TemplatesWrite))
}
