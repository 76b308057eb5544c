package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultMailboxIdle = 5 * time.Minute

// dispatcher runs updates of one chat sequentially and different chats concurrently.
// Each chat gets a queue of at most size updates drained by its own goroutine, which
// exits after staying idle for idle. Enqueueing never blocks, so a busy chat cannot
// stall the poller.
type dispatcher struct {
	handle func(context.Context, tgbotapi.Update)
	size   int
	idle   time.Duration

	mu    sync.Mutex
	boxes map[int64]*mailbox
	wg    sync.WaitGroup
}

type mailbox struct {
	queue []tgbotapi.Update
	wake  chan struct{}
}

func newDispatcher(size int, idle time.Duration, handle func(context.Context, tgbotapi.Update)) *dispatcher {
	if size <= 0 {
		size = 1
	}
	if idle <= 0 {
		idle = defaultMailboxIdle
	}
	return &dispatcher{handle: handle, size: size, idle: idle, boxes: make(map[int64]*mailbox)}
}

// dispatch enqueues update for chatID. It reports false when the chat already has size
// updates waiting; the update is dropped and other chats are unaffected.
func (d *dispatcher) dispatch(ctx context.Context, chatID int64, update tgbotapi.Update) bool {
	d.mu.Lock()
	box, ok := d.boxes[chatID]
	if !ok {
		box = &mailbox{wake: make(chan struct{}, 1)}
		d.boxes[chatID] = box
		d.wg.Add(1)
		go d.run(ctx, chatID, box)
	}
	if len(box.queue) >= d.size {
		d.mu.Unlock()
		return false
	}
	box.queue = append(box.queue, update)
	d.mu.Unlock()

	select {
	case box.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) next(box *mailbox) (tgbotapi.Update, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(box.queue) == 0 {
		return tgbotapi.Update{}, false
	}
	update := box.queue[0]
	box.queue[0] = tgbotapi.Update{}
	box.queue = box.queue[1:]
	return update, true
}

func (d *dispatcher) run(ctx context.Context, chatID int64, box *mailbox) {
	defer d.wg.Done()
	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		if update, ok := d.next(box); ok {
			d.handle(ctx, update)
			if ctx.Err() != nil {
				return
			}
			timer.Reset(d.idle)
			continue
		}
		select {
		case <-box.wake:
		case <-timer.C:
			d.mu.Lock()
			if len(box.queue) == 0 {
				delete(d.boxes, chatID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(d.idle)
		case <-ctx.Done():
			return
		}
	}
}

// wait blocks until every mailbox goroutine has exited.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.boxes)
}
