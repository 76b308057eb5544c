package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDispatcherKeepsPerChatOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu   sync.Mutex
		seen = map[int64][]int{}
		busy = map[int64]*int32{1: new(int32), 2: new(int32)}
		wg   sync.WaitGroup
	)
	d := newDispatcher(16, time.Minute, func(_ context.Context, update tgbotapi.Update) {
		defer wg.Done()
		chatID := update.Message.Chat.ID
		if !atomic.CompareAndSwapInt32(busy[chatID], 0, 1) {
			t.Errorf("chat %d handled concurrently", chatID)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[chatID] = append(seen[chatID], update.UpdateID)
		mu.Unlock()
		atomic.StoreInt32(busy[chatID], 0)
	})

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 10; i++ {
		for _, chatID := range []int64{1, 2} {
			wg.Add(1)
			d.dispatch(ctx, chatID, tgbotapi.Update{UpdateID: i, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}}})
		}
	}
	wg.Wait()
	cancel()
	d.wait()

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, want, seen[1])
	assert.Equal(t, want, seen[2])
}

func TestDispatcherRetiresIdleMailboxes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handled := make(chan struct{}, 1)
	d := newDispatcher(1, 10*time.Millisecond, func(context.Context, tgbotapi.Update) {
		handled <- struct{}{}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.dispatch(ctx, 7, tgbotapi.Update{UpdateID: 1})
	<-handled
	require.Eventually(t, func() bool { return d.active() == 0 }, time.Second, 5*time.Millisecond)

	d.dispatch(ctx, 7, tgbotapi.Update{UpdateID: 2})
	<-handled
	cancel()
	d.wait()
}

func TestDispatcherBusyChatDoesNotStallOthers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	handled := make(chan int64, 8)
	d := newDispatcher(1, time.Minute, func(_ context.Context, update tgbotapi.Update) {
		chatID := update.Message.Chat.ID
		if chatID == 1 {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		}
		handled <- chatID
	})
	ctx, cancel := context.WithCancel(context.Background())
	update := func(chatID int64) tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}}}
	}

	require.True(t, d.dispatch(ctx, 1, update(1)))
	<-started
	require.True(t, d.dispatch(ctx, 1, update(1)))
	assert.False(t, d.dispatch(ctx, 1, update(1)), "a full mailbox drops the update")
	assert.False(t, d.dispatch(ctx, 1, update(1)))

	require.True(t, d.dispatch(ctx, 2, update(2)))
	select {
	case chatID := <-handled:
		assert.Equal(t, int64(2), chatID)
	case <-time.After(time.Second):
		t.Fatal("chat 2 stalled behind busy chat 1")
	}

	close(release)
	for i := 0; i < 2; i++ {
		assert.Equal(t, int64(1), <-handled)
	}
	cancel()
	d.wait()
}

type fakeUpdates struct {
	ch      chan tgbotapi.Update
	stopped atomic.Bool
}

func (f *fakeUpdates) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeUpdates) StopReceivingUpdates() {
	f.stopped.Store(true)
}

func TestRunStopsOnCancel(t *testing.T) {
	source := &fakeUpdates{ch: make(chan tgbotapi.Update)}
	f := newBotFixture(t, func(d *Deps) { d.Updates = source })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx) }()

	source.ch <- commandUpdate(testChatID, "start")
	require.Eventually(t, func() bool {
		f.client.mu.Lock()
		defer f.client.mu.Unlock()
		return len(f.client.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, source.stopped.Load())
}
