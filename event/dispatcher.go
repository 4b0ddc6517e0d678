package event

// Handler consumes one event. Handlers run synchronously on the engine's
// dispatch goroutine and MUST NOT call back into the book; follow-up
// work is queued with Defer and executed after the current book
// operation has fully unwound.
type Handler func(Event)

// Command is deferred work queued by a handler (a follow-up submit,
// cancel, or stop amendment). Commands run one at a time once the
// operation that produced the triggering event has returned.
type Command func()

/*
Dispatcher fans book events out to at most one internal handler per
kind (the advanced-order controller) and any number of external
handlers (the embedding application).

Delivery is strictly in generation order. The internal handler for an
event always runs before the external ones, so composite bookkeeping is
complete by the time the embedding application observes the event.
External handlers run in subscription order.

The deferred-command queue is the reentrancy firewall: a handler that
cancelled a resting order mid-delivery could otherwise mutate a price
level the matching loop is still walking.
*/
type Dispatcher struct {
	internal [numKinds]Handler
	external [numKinds][]Handler
	queue    []Command
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SubscribeInternal registers the engine-internal handler for a kind.
// At most one internal handler per kind; later calls replace earlier.
func (d *Dispatcher) SubscribeInternal(k Kind, h Handler) {
	d.internal[k] = h
}

// SubscribeExternal adds an embedding-application handler for a kind.
func (d *Dispatcher) SubscribeExternal(k Kind, h Handler) {
	d.external[k] = append(d.external[k], h)
}

// Dispatch delivers events in order, internal handler first.
func (d *Dispatcher) Dispatch(evs []Event) {
	for _, ev := range evs {
		if h := d.internal[ev.Kind]; h != nil {
			h(ev)
		}
		for _, h := range d.external[ev.Kind] {
			h(ev)
		}
	}
}

// Defer queues a follow-up command for execution after the current book
// operation returns.
func (d *Dispatcher) Defer(cmd Command) {
	d.queue = append(d.queue, cmd)
}

// Pop removes and returns the oldest deferred command, or nil if the
// queue is empty.
func (d *Dispatcher) Pop() Command {
	if len(d.queue) == 0 {
		return nil
	}
	cmd := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return cmd
}

// Pending reports how many deferred commands are queued.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
