package orderbook

// PriceLevel is a FIFO queue of orders resting at a single price on one
// side. Orders are chained intrusively; Unlink is O(1) from anywhere in
// the queue, which is what makes cancel-by-id cheap.
type PriceLevel struct {
	Price int64

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

// Enqueue appends at the tail (newest time priority).
func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level = p
	p.TotalQty += o.Remaining
	p.OrderCount++
}

// Unlink removes o from the queue. o must currently be linked into p.
func (p *PriceLevel) Unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	o.level = nil

	p.TotalQty -= o.Remaining
	p.OrderCount--
}

// Reduce accounts for qty lots consumed from o by the matching loop.
func (p *PriceLevel) Reduce(qty int64) {
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head returns the order with the oldest time priority.
func (p *PriceLevel) Head() *Order {
	return p.head
}
