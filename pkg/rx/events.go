package rx

// dispatcher delivers events in order on a channel without ever blocking the
// producer. Events queue up until the consumer reads them.
type dispatcher struct {
	in   chan Event
	out  chan Event
	quit chan struct{}
	done chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		in:   make(chan Event),
		out:  make(chan Event),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go d.loop()

	return d
}

func (d *dispatcher) send(ev Event) {
	select {
	case d.in <- ev:
	case <-d.quit:
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	defer close(d.out)

	var queue []Event

	for {
		var (
			out  chan Event
			next Event
		)

		if len(queue) > 0 {
			out = d.out
			next = queue[0]
		}

		select {
		case ev := <-d.in:
			queue = append(queue, ev)
		case out <- next:
			queue[0] = Event{}
			queue = queue[1:]
		case <-d.quit:
			return
		}
	}
}

// close stops the loop. Undelivered events are dropped and the output
// channel is closed.
func (d *dispatcher) close() {
	close(d.quit)
	<-d.done
}
