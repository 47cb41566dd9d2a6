package notifyer

import (
	"sync/atomic"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

// ChanNotifyer fans health state changes out to the monitoring
// collaborators over a buffered channel.
type ChanNotifyer struct {
	eventChan chan models.HealthEvent
	closed    atomic.Bool
	close     chan struct{}
}

func NewNotifier(buf int) *ChanNotifyer {
	return &ChanNotifyer{
		eventChan: make(chan models.HealthEvent, buf),
		closed:    atomic.Bool{},
		close:     make(chan struct{}),
	}
}

func (n *ChanNotifyer) NotifyHealthChanged(event models.HealthEvent) {
	if n.closed.Load() {
		return
	}
	select {
	case n.eventChan <- event:
	case <-n.close:
	default:
		if n.closed.Load() {
			return
		}
		// consumer is behind, block until it drains or we shut down
		select {
		case n.eventChan <- event:
		case <-n.close:
		}
	}
}

func (n *ChanNotifyer) GetEventChan() chan models.HealthEvent {
	return n.eventChan
}

func (n *ChanNotifyer) Close() {
	n.closed.Store(true)
	close(n.close)
	close(n.eventChan)
}
