package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelFatal, logging.FormatText)
}

func testSession(user string) *Session {
	return &Session{AccessToken: "token-" + user, UserID: user, Email: user + "@example.com"}
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	store := NewStore()

	var events []Event
	unsubscribe := store.Subscribe(func(ev Event) { events = append(events, ev) })

	store.SetSession(testSession("ana"))
	store.Clear()

	require.Len(t, events, 2)
	assert.Equal(t, "ana", events[0].Session.UserID)
	assert.Equal(t, uint64(1), events[0].Generation)
	assert.Nil(t, events[1].Session)
	assert.Equal(t, uint64(2), events[1].Generation)

	unsubscribe()
	unsubscribe()
	store.SetSession(testSession("bia"))
	assert.Len(t, events, 2)
}

func TestStore_SessionChangeResetsProfile(t *testing.T) {
	store := NewStore()

	store.SetSession(testSession("ana"))
	snap := store.Snapshot()
	assert.True(t, snap.Loading)
	assert.Equal(t, "token-ana", store.Token())

	require.True(t, store.ApplyProfile(snap.Generation, &models.Profile{UserID: "ana"}))
	snap = store.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Profile)

	store.SetSession(testSession("bia"))
	snap = store.Snapshot()
	assert.Nil(t, snap.Profile)
	assert.True(t, snap.Loading)

	store.SetSession(nil)
	snap = store.Snapshot()
	assert.Nil(t, snap.Session)
	assert.False(t, snap.Loading)
	assert.Empty(t, store.Token())
}

func TestStore_StaleProfileIsDropped(t *testing.T) {
	store := NewStore()

	store.SetSession(testSession("ana"))
	first := store.Generation()
	store.SetSession(testSession("bia"))

	assert.False(t, store.ApplyProfile(first, &models.Profile{UserID: "ana"}))
	snap := store.Snapshot()
	assert.Nil(t, snap.Profile)
	assert.True(t, snap.Loading)
}

func TestStore_Close(t *testing.T) {
	store := NewStore()
	calls := 0
	store.Subscribe(func(Event) { calls++ })

	store.SetSession(testSession("ana"))
	gen := store.Generation()
	store.Close()

	assert.False(t, store.ApplyProfile(gen, &models.Profile{UserID: "ana"}))

	store.SetSession(testSession("bia"))
	assert.Equal(t, 1, calls)

	store.Subscribe(func(Event) { calls++ })
	store.Clear()
	assert.Equal(t, 1, calls)

	store.Close()
}

func TestStore_UpdateProfile(t *testing.T) {
	store := NewStore()

	store.UpdateProfile(&models.Profile{UserID: "ghost"})
	assert.Nil(t, store.Snapshot().Profile)

	store.SetSession(testSession("ana"))
	store.UpdateProfile(&models.Profile{UserID: "ana", Name: "Ana"})
	assert.Equal(t, "Ana", store.Snapshot().Profile.Name)
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()

	assert.False(t, (&Session{}).Expired(now))
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now}).Expired(now))
}

func TestProfileResolver_AppliesCurrentSession(t *testing.T) {
	store := NewStore()
	defer store.Close()

	resolver := NewProfileResolver(store, func(_ context.Context, sess *Session) (*models.Profile, error) {
		return &models.Profile{UserID: sess.UserID, Email: sess.Email}, nil
	}, time.Second, quietLogger())
	defer resolver.Close()

	store.SetSession(testSession("ana"))
	resolver.Wait()

	snap := store.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "ana", snap.Profile.UserID)
}

func TestProfileResolver_LateResultAfterNewSession(t *testing.T) {
	store := NewStore()
	defer store.Close()

	release := make(chan struct{})

	resolver := NewProfileResolver(store, func(_ context.Context, sess *Session) (*models.Profile, error) {
		if sess.UserID == "ana" {
			<-release
		}
		return &models.Profile{UserID: sess.UserID}, nil
	}, time.Second, quietLogger())
	defer resolver.Close()

	store.SetSession(testSession("ana"))
	store.SetSession(testSession("bia"))

	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.Profile != nil && snap.Profile.UserID == "bia"
	}, time.Second, 5*time.Millisecond)

	close(release)
	resolver.Wait()

	assert.Equal(t, "bia", store.Snapshot().Profile.UserID)
}

func TestProfileResolver_ResultAfterCloseIsDropped(t *testing.T) {
	store := NewStore()
	release := make(chan struct{})

	resolver := NewProfileResolver(store, func(context.Context, *Session) (*models.Profile, error) {
		<-release
		return &models.Profile{UserID: "ana"}, nil
	}, time.Second, quietLogger())

	store.SetSession(testSession("ana"))
	store.Close()
	close(release)
	resolver.Close()

	snap := store.Snapshot()
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
}

func TestProfileResolver_LookupFailureEndsLoading(t *testing.T) {
	store := NewStore()
	defer store.Close()

	resolver := NewProfileResolver(store, func(context.Context, *Session) (*models.Profile, error) {
		return nil, errors.New("profile service down")
	}, time.Second, quietLogger())
	defer resolver.Close()

	store.SetSession(testSession("ana"))
	resolver.Wait()

	snap := store.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Profile)
	require.NotNil(t, snap.Session)
}

func TestProfileResolver_IgnoresSignOut(t *testing.T) {
	store := NewStore()
	defer store.Close()

	calls := 0
	resolver := NewProfileResolver(store, func(context.Context, *Session) (*models.Profile, error) {
		calls++
		return nil, nil
	}, time.Second, quietLogger())
	defer resolver.Close()

	store.Clear()
	resolver.Wait()

	assert.Zero(t, calls)
}

func TestProfileResolver_EventAfterCloseStartsNoLookup(t *testing.T) {
	store := NewStore()
	defer store.Close()

	var calls atomic.Int32
	resolver := NewProfileResolver(store, func(context.Context, *Session) (*models.Profile, error) {
		calls.Add(1)
		return nil, nil
	}, time.Second, quietLogger())
	resolver.Close()

	// an event already in flight when the subscription was removed
	resolver.onEvent(Event{Session: testSession("ana"), Generation: 1})
	resolver.Wait()

	assert.Zero(t, calls.Load())
}

func TestProfileResolver_CloseDuringSessionChanges(t *testing.T) {
	store := NewStore()
	defer store.Close()

	resolver := NewProfileResolver(store, func(_ context.Context, sess *Session) (*models.Profile, error) {
		return &models.Profile{UserID: sess.UserID}, nil
	}, time.Second, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				store.SetSession(testSession(fmt.Sprintf("user-%d-%d", i, j)))
			}
		}(i)
	}

	resolver.Close()
	wg.Wait()
	resolver.Wait()
}
