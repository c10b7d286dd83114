package api

import (
	"sync"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// Event types streamed to SSE clients.
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventFile     = "file"
	EventTerminal = "terminal"
)

const subscriberBuffer = 64

// Event is one batch event addressed to the batch's subscribers.
type Event struct {
	Type    string
	BatchID string
	Data    any
}

// Broker fans batch events out to per-batch subscribers. It satisfies
// ingest.Observer. Sends never block the batch: a subscriber whose buffer is
// full misses intermediate events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for events of batchID. The channel is closed after the
// terminal event or when cancel is called.
func (b *Broker) Subscribe(batchID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[batchID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[batchID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[batchID]; ok {
				if _, live := set[ch]; live {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, batchID)
				}
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscribers for batchID.
func (b *Broker) Subscribers(batchID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[batchID])
}

func (b *Broker) publish(ev Event, last bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[ev.BatchID]
	for ch := range set {
		select {
		case ch <- ev:
		default:
			if last {
				// Make room so the terminal event is always delivered.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
		if last {
			close(ch)
		}
	}
	if last {
		delete(b.subs, ev.BatchID)
	}
}

func (b *Broker) OnStart(batch model.UploadBatch) {
	b.publish(Event{Type: EventStart, BatchID: batch.ID, Data: snapshot(&batch)}, false)
}

func (b *Broker) OnProgress(p model.Progress) {
	b.publish(Event{Type: EventProgress, BatchID: p.BatchID, Data: p}, false)
}

func (b *Broker) OnFileDone(t model.FileTask) {
	b.publish(Event{Type: EventFile, BatchID: t.BatchID, Data: t}, false)
}

func (b *Broker) OnTerminal(t model.Terminal) {
	b.publish(Event{Type: EventTerminal, BatchID: t.BatchID, Data: t}, true)
}
