package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserPlaceSet(t *testing.T) {
	usr := &User{ID: "u1", Places: []string{}}

	usr.AddPlace("p1")
	usr.AddPlace("p2")
	usr.AddPlace("p1")
	assert.Equal(t, []string{"p1", "p2"}, usr.Places, "AddPlace must keep set semantics")
	assert.True(t, usr.HasPlace("p2"))

	usr.RemovePlace("p1")
	assert.Equal(t, []string{"p2"}, usr.Places)
	assert.False(t, usr.HasPlace("p1"))

	usr.RemovePlace("p2")
	assert.NotNil(t, usr.Places)
	assert.Empty(t, usr.Places)

	usr.RemovePlace("missing")
	assert.Empty(t, usr.Places)
}

func TestUserCloneIsDeep(t *testing.T) {
	usr := &User{ID: "u1", Places: []string{"p1"}}
	c := usr.Clone()
	c.AddPlace("p2")

	assert.Equal(t, []string{"p1"}, usr.Places)
	assert.Equal(t, []string{"p1", "p2"}, c.Places)

	var nilUser *User
	assert.Nil(t, nilUser.Clone())
}

func TestPlaceCloneCopiesCreator(t *testing.T) {
	place := &Place{ID: "p1", Creator: "u1", CreatorUser: &User{ID: "u1", Places: []string{"p1"}}}
	c := place.Clone()
	c.CreatorUser.RemovePlace("p1")

	assert.Equal(t, []string{"p1"}, place.CreatorUser.Places)
	assert.Empty(t, c.CreatorUser.Places)
}
