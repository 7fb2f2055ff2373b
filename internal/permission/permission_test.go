package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate())
}

func TestCatalogTokensAreDistinct(t *testing.T) {
	seen := make(map[string]Permission)
	for _, p := range All {
		prev, dup := seen[string(p)]
		assert.False(t, dup, "%s shares its token with %s", p, prev)
		seen[string(p)] = p
	}
	assert.Len(t, seen, 11)
}

func TestBaseSetsInsideUniverse(t *testing.T) {
	for _, v := range Variants() {
		t.Run(string(v), func(t *testing.T) {
			universe := AllowedFor(v)
			assert.True(t, OwnerBase(v).SubsetOf(universe), "owner base %s", OwnerBase(v))
			assert.True(t, MemberBase(v).SubsetOf(universe), "member base %s", MemberBase(v))
		})
	}
}

func TestGiftGroupOwnerBase(t *testing.T) {
	want := NewSet(GroupDelete, GroupAdmin, GroupInvite, ChildGroupCreate)
	assert.True(t, OwnerBase(GiftGroup).Equal(want), "got %s", OwnerBase(GiftGroup))
}

func TestCategories(t *testing.T) {
	assert.True(t, IsSingular(BasicList))
	assert.True(t, IsSingular(GiftList))
	assert.True(t, IsParent(GiftGroup))
	assert.True(t, IsChild(GiftGroupChild))

	assert.True(t, IsTopLevel(GiftGroup))
	assert.False(t, IsTopLevel(GiftGroupChild))

	assert.False(t, IsParent(Variant("NOPE")))
	assert.False(t, IsChild(Variant("NOPE")))
	assert.False(t, IsSingular(Variant("NOPE")))
}

func TestAdmitsChild(t *testing.T) {
	assert.True(t, AdmitsChild(GiftGroup, GiftGroupChild))
	assert.False(t, AdmitsChild(GiftGroup, GiftList))
	assert.False(t, AdmitsChild(BasicList, GiftGroupChild))
	assert.False(t, AdmitsChild(GiftGroupChild, GiftGroupChild))

	child, ok := ChildVariantOf(GiftGroup)
	require.True(t, ok)
	assert.Equal(t, GiftGroupChild, child)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" gift_group ")
	require.NoError(t, err)
	assert.Equal(t, GiftGroup, v)

	_, err = ParseVariant("SHOPPING")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestParsePermission(t *testing.T) {
	p, err := Parse("group_rw_messages")
	require.NoError(t, err)
	assert.Equal(t, GroupRWMessages, p)

	_, err = Parse("GROUP_RW_LIST_EVENTS")
	assert.Error(t, err)
}

func TestLookupReturnsCopies(t *testing.T) {
	p, ok := Lookup(GiftList)
	require.True(t, ok)
	p.OwnerBase[0] = "TAMPERED"

	again, _ := Lookup(GiftList)
	assert.NotContains(t, again.OwnerBase, Permission("TAMPERED"))

	_, ok = Lookup(Variant("NOPE"))
	assert.False(t, ok)
}

func genSet() *rapid.Generator[Set] {
	return rapid.Custom(func(t *rapid.T) Set {
		perms := rapid.SliceOf(rapid.SampledFrom(All)).Draw(t, "perms")
		return NewSet(perms...)
	})
}

func TestProperty_SetAlgebra(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genSet().Draw(t, "a")
		b := genSet().Draw(t, "b")

		u := a.Union(b)
		if !a.SubsetOf(u) || !b.SubsetOf(u) {
			t.Fatalf("union %s does not contain %s and %s", u, a, b)
		}
		if !u.Equal(b.Union(a)) {
			t.Fatalf("union is not commutative: %s vs %s", u, b.Union(a))
		}
		if len(a.Missing(u)) != 0 {
			t.Fatalf("missing of subset should be empty, got %s", a.Missing(u))
		}
		for _, p := range u {
			if !a.Has(p) && !b.Has(p) {
				t.Fatalf("union invented %s", p)
			}
		}
	})
}

// Every variant's base sets stay inside its universe, and every permission a
// base set grants is recognised by Has on the universe.
func TestProperty_BaseSetsClosed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.SampledFrom(Variants()).Draw(t, "variant")
		p := rapid.SampledFrom(All).Draw(t, "perm")

		universe := AllowedFor(v)
		if OwnerBase(v).Has(p) && !universe.Has(p) {
			t.Fatalf("%s owner base grants %s outside universe", v, p)
		}
		if MemberBase(v).Has(p) && !universe.Has(p) {
			t.Fatalf("%s member base grants %s outside universe", v, p)
		}
	})
}
