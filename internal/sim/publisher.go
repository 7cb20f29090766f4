package sim

import (
	"log"
	"sync"

	"github.com/solsim/solsim/internal/models"
)

// Consumer receives read-only state snapshots after each tick. OnSnapshot
// runs on a dedicated goroutine per consumer; a slow consumer drops
// snapshots instead of blocking the loop.
type Consumer interface {
	Name() string
	OnSnapshot(snap models.Snapshot)
}

const consumerBuffer = 16

// Publisher fans snapshots out to registered consumers through buffered
// channels so the tick loop never waits on a consumer.
type Publisher struct {
	logger    *log.Logger
	consumers []consumerChan
	wg        sync.WaitGroup
	closed    bool
}

type consumerChan struct {
	consumer Consumer
	ch       chan models.Snapshot
}

// NewPublisher creates a publisher over the given consumers and starts
// one delivery goroutine per consumer.
func NewPublisher(logger *log.Logger, consumers ...Consumer) *Publisher {
	p := &Publisher{logger: logger}
	for _, c := range consumers {
		cc := consumerChan{consumer: c, ch: make(chan models.Snapshot, consumerBuffer)}
		p.consumers = append(p.consumers, cc)
		p.wg.Add(1)
		go p.deliver(cc)
	}
	return p
}

func (p *Publisher) deliver(cc consumerChan) {
	defer p.wg.Done()
	for snap := range cc.ch {
		cc.consumer.OnSnapshot(snap)
	}
}

// Publish hands the snapshot to every consumer without blocking. Full
// consumer buffers drop the snapshot; the trade history in storage is the
// durable record, snapshots are best-effort telemetry.
func (p *Publisher) Publish(snap models.Snapshot) {
	if p.closed {
		return
	}
	for _, cc := range p.consumers {
		select {
		case cc.ch <- snap:
		default:
			p.logger.Printf("Warning: consumer %s is slow, dropping snapshot for tick %d",
				cc.consumer.Name(), snap.Tick)
		}
	}
}

// Close drains and stops all consumer goroutines. Pending snapshots are
// delivered before Close returns.
func (p *Publisher) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for _, cc := range p.consumers {
		close(cc.ch)
	}
	p.wg.Wait()
}
