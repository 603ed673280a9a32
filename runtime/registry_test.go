package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/errors"
	"chat-relay/protocol"
)

type nopSink struct{}

func (nopSink) Deliver(_ context.Context, _ protocol.ServerEvent) error {
	return nil
}

func TestRegistry_Add_Normalizes_And_Lists_In_Join_Order(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// When two participants join the same room with unnormalized names
	_, count, err := registry.Add("c1", "  Alice ", " Lobby ", nopSink{})
	req.NoError(err)
	req.Equal(1, count)
	_, count, err = registry.Add("c2", "Bob", "lobby", nopSink{})
	req.NoError(err)
	req.Equal(2, count)

	// Then both sessions are listed under the normalized room, in join order
	sessions := registry.ListRoom("LOBBY")
	req.Len(sessions, 2)
	req.Equal("alice", sessions[0].Username)
	req.Equal("bob", sessions[1].Username)
	req.Equal("lobby", sessions[0].Room)
}

func TestRegistry_Add_Rejects_Duplicate_Username_In_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given alice is active in lobby
	_, _, err := registry.Add("c1", "alice", "lobby", nopSink{})
	req.NoError(err)

	// When a second connection claims the same normalized pair
	_, _, err = registry.Add("c2", " ALICE ", "Lobby", nopSink{})

	// Then the join is refused
	req.ErrorIs(err, errors.ErrUsernameTaken)

	// And the same username is fine in another room
	_, count, err := registry.Add("c3", "alice", "other", nopSink{})
	req.NoError(err)
	req.Equal(1, count)
}

func TestRegistry_Add_Rejects_Empty_Names(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name     string
		username string
		room     string
	}{
		{"empty username", "", "lobby"},
		{"blank username", "   ", "lobby"},
		{"empty room", "alice", ""},
		{"blank room", "alice", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := registry.Add(uuid.NewString(), tt.username, tt.room, nopSink{})
			require.ErrorIs(t, err, errors.ErrMissingFields)
		})
	}
}

func TestRegistry_Remove_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	_, _, err := registry.Add("c1", "alice", "lobby", nopSink{})
	req.NoError(err)

	// When the session is removed twice
	session, ok := registry.Remove("c1")
	req.True(ok)
	req.Equal("alice", session.Username)

	_, ok = registry.Remove("c1")
	req.False(ok)

	// Then the room is empty, not errored
	req.Empty(registry.ListRoom("lobby"))
	_, ok = registry.Get("c1")
	req.False(ok)
}

func TestRegistry_ListRoom_Unknown_Room_Is_Empty(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.Empty(registry.ListRoom("nowhere"))
	req.Empty(registry.ListRoom("   "))
}

func TestRegistry_FindInRoom(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	_, _, err := registry.Add("c1", "alice", "lobby", nopSink{})
	req.NoError(err)

	session, ok := registry.FindInRoom("Lobby", " Alice ")
	req.True(ok)
	req.Equal("c1", session.ConnectionID)

	_, ok = registry.FindInRoom("lobby", "bob")
	req.False(ok)
}

func TestRegistry_SinksForRoom_Excludes_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	_, _, err := registry.Add("c1", "alice", "lobby", nopSink{})
	req.NoError(err)
	_, _, err = registry.Add("c2", "bob", "lobby", nopSink{})
	req.NoError(err)

	req.Len(registry.SinksForRoom("lobby", ""), 2)
	req.Len(registry.SinksForRoom("lobby", "c1"), 1)
}

// The registry serializes mutations; concurrent joins for the same
// username must admit exactly one.
func TestRegistry_Concurrent_Joins_Keep_Uniqueness(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	const attempts = 32
	var wg sync.WaitGroup
	admitted := make(chan string, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.NewString()
			if _, _, err := registry.Add(id, "alice", "lobby", nopSink{}); err == nil {
				admitted <- id
			}
		}()
	}
	wg.Wait()
	close(admitted)

	var winners []string
	for id := range admitted {
		winners = append(winners, id)
	}
	req.Len(winners, 1)
	req.Len(registry.ListRoom("lobby"), 1)
}

// Member counts are assigned under the registry mutex, so concurrent
// joins of a fresh room receive distinct positions and exactly one
// joiner observes count 1.
func TestRegistry_Concurrent_Joins_Assign_Distinct_Counts(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	const joiners = 8
	var wg sync.WaitGroup
	counts := make(chan int, joiners)

	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, count, err := registry.Add(uuid.NewString(), uuid.NewString(), "fresh", nopSink{})
			if err == nil {
				counts <- count
			}
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool)
	for count := range counts {
		req.False(seen[count], "count %d assigned twice", count)
		seen[count] = true
	}
	req.Len(seen, joiners)
	req.True(seen[1])
}
