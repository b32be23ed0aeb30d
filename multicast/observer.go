package multicast

import "time"

// Observer receives protocol notifications for one node. Implementations
// must return quickly: OnDelivered runs while the delivery buffer is locked.
type Observer interface {
	OnSent(m Message)
	OnReceived(at time.Time, m Message)
	OnDelivered(seq uint64, m Message)
}

// Observers fans every notification out to each member in order.
type Observers []Observer

func (o Observers) OnSent(m Message) {
	for _, obs := range o {
		obs.OnSent(m)
	}
}

func (o Observers) OnReceived(at time.Time, m Message) {
	for _, obs := range o {
		obs.OnReceived(at, m)
	}
}

func (o Observers) OnDelivered(seq uint64, m Message) {
	for _, obs := range o {
		obs.OnDelivered(seq, m)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Sent      func(m Message)
	Received  func(at time.Time, m Message)
	Delivered func(seq uint64, m Message)
}

func (f ObserverFuncs) OnSent(m Message) {
	if f.Sent != nil {
		f.Sent(m)
	}
}

func (f ObserverFuncs) OnReceived(at time.Time, m Message) {
	if f.Received != nil {
		f.Received(at, m)
	}
}

func (f ObserverFuncs) OnDelivered(seq uint64, m Message) {
	if f.Delivered != nil {
		f.Delivered(seq, m)
	}
}
