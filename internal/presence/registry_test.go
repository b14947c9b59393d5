package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/astroline/consult-server-go/internal/model"
)

func TestJoin(t *testing.T) {
	t.Run("one role present is not enough", func(t *testing.T) {
		r := NewRegistry()
		both := r.Join("room1", "conn-u", model.RoleUser, "user1")
		assert.False(t, both)
	})

	t.Run("both roles present reports true", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "conn-u", model.RoleUser, "user1")
		both := r.Join("room1", "conn-a", model.RoleAstrologer, "astro1")
		assert.True(t, both)
	})

	t.Run("duplicate join from same role is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "conn-u1", model.RoleUser, "user1")
		both := r.Join("room1", "conn-u2", model.RoleUser, "user1")
		assert.False(t, both)

		both = r.Join("room1", "conn-a", model.RoleAstrologer, "astro1")
		assert.True(t, both)
	})

	t.Run("rooms are independent", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "c1", model.RoleUser, "user1")
		both := r.Join("room2", "c2", model.RoleAstrologer, "astro1")
		assert.False(t, both)
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("returns all rooms the connection joined", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "conn1", model.RoleUser, "user1")
		r.Join("room2", "conn1", model.RoleUser, "user1")

		rooms := r.Disconnect("conn1")
		assert.ElementsMatch(t, []string{"room1", "room2"}, rooms)
	})

	t.Run("second disconnect returns nothing", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "conn1", model.RoleUser, "user1")

		r.Disconnect("conn1")
		assert.Empty(t, r.Disconnect("conn1"))
	})

	t.Run("removes astrologer registration owned by the connection", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterAstrologer("astro1", "conn1")
		assert.True(t, r.AstrologerOnline("astro1"))

		r.Disconnect("conn1")
		assert.False(t, r.AstrologerOnline("astro1"))
	})
}

func TestRegisterAstrologer(t *testing.T) {
	t.Run("last registered connection wins", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterAstrologer("astro1", "conn-old")
		r.RegisterAstrologer("astro1", "conn-new")

		// The replaced connection going away must not evict the new one.
		r.UnregisterAstrologer("astro1", "conn-old")
		assert.True(t, r.AstrologerOnline("astro1"))

		r.UnregisterAstrologer("astro1", "conn-new")
		assert.False(t, r.AstrologerOnline("astro1"))
	})
}

func TestLeaveAndRelease(t *testing.T) {
	t.Run("leave removes the connection from the room", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "conn1", model.RoleUser, "user1")
		r.Leave("room1", "conn1")

		assert.Empty(t, r.Rooms("conn1"))
	})

	t.Run("release clears all connections of a room", func(t *testing.T) {
		r := NewRegistry()
		r.Join("room1", "conn-u", model.RoleUser, "user1")
		r.Join("room1", "conn-a", model.RoleAstrologer, "astro1")

		r.Release("room1")

		assert.Empty(t, r.Rooms("conn-u"))
		assert.Empty(t, r.Rooms("conn-a"))
	})

	t.Run("release of unknown room is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Release("nope")
	})
}
