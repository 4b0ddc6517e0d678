package event

import "testing"

func TestInternalBeforeExternal(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.SubscribeExternal(Fill, func(Event) { order = append(order, "ext1") })
	d.SubscribeInternal(Fill, func(Event) { order = append(order, "int") })
	d.SubscribeExternal(Fill, func(Event) { order = append(order, "ext2") })

	d.Dispatch([]Event{{Kind: Fill}})

	want := []string{"int", "ext1", "ext2"}
	if len(order) != len(want) {
		t.Fatalf("handlers ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("handlers ran %v, want %v", order, want)
		}
	}
}

func TestDispatchPreservesEventOrder(t *testing.T) {
	d := NewDispatcher()
	var ids []uint64
	d.SubscribeInternal(Fill, func(ev Event) { ids = append(ids, ev.OrderID) })
	d.SubscribeInternal(Cancel, func(ev Event) { ids = append(ids, ev.OrderID) })

	d.Dispatch([]Event{
		{Kind: Fill, OrderID: 1},
		{Kind: Cancel, OrderID: 2},
		{Kind: Fill, OrderID: 3},
	})

	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("delivery order = %v, want [1 2 3]", ids)
	}
}

func TestDeferredCommandsRunFIFO(t *testing.T) {
	d := NewDispatcher()
	var ran []int
	d.Defer(func() { ran = append(ran, 1) })
	d.Defer(func() { ran = append(ran, 2) })

	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}
	for cmd := d.Pop(); cmd != nil; cmd = d.Pop() {
		cmd()
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Fatalf("ran = %v, want [1 2]", ran)
	}
	if d.Pop() != nil {
		t.Fatal("pop on empty queue returned a command")
	}
}

func TestCommandsMayDeferMoreCommands(t *testing.T) {
	d := NewDispatcher()
	var ran []int
	d.Defer(func() {
		ran = append(ran, 1)
		d.Defer(func() { ran = append(ran, 2) })
	})

	for cmd := d.Pop(); cmd != nil; cmd = d.Pop() {
		cmd()
	}
	if len(ran) != 2 || ran[1] != 2 {
		t.Fatalf("ran = %v, want [1 2]", ran)
	}
}

func TestKindString(t *testing.T) {
	if Fill.String() != "FILL" || StopTriggered.String() != "STOP_TRIGGERED" {
		t.Fatal("unexpected kind names")
	}
}
