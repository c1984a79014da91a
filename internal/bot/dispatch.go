package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// dispatcher runs updates of one user strictly in arrival order while
// different users proceed concurrently.
type dispatcher struct {
	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
	handle func(tgbotapi.Update)
}

func newDispatcher(handle func(tgbotapi.Update)) *dispatcher {
	return &dispatcher{
		queues: make(map[int64][]tgbotapi.Update),
		handle: handle,
	}
}

func (d *dispatcher) dispatch(userID int64, update tgbotapi.Update) {
	d.mu.Lock()
	queue, running := d.queues[userID]
	d.queues[userID] = append(queue, update)
	d.mu.Unlock()

	if running {
		return
	}
	d.wg.Add(1)
	go d.drain(userID)
}

func (d *dispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		next := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		d.handle(next)
	}
}

// wait blocks until every queued update has been handled.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

func updateUserID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID, true
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, true
	default:
		return 0, false
	}
}
