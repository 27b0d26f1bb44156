package identity

import "context"

// EventKind es el tipo de cambio de identidad.
type EventKind int

const (
	SignedUp EventKind = iota + 1
	SignedIn
	SignedOut
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case SignedUp:
		return "signed_up"
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Event notifica un cambio de la identidad actual.
type Event struct {
	Kind   EventKind
	UserID string
}

// Listener recibe eventos de identidad. Se invoca de forma síncrona, en el
// goroutine de la operación que lo produjo: no debe bloquear.
type Listener func(ctx context.Context, e Event)

// Subscribe registra fn y devuelve la función para desuscribirla.
func (p *Provider) Subscribe(fn Listener) (unsubscribe func()) {
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *Provider) publish(ctx context.Context, e Event) {
	p.subMu.RLock()
	listeners := make([]Listener, 0, len(p.subs))
	for _, l := range p.subs {
		listeners = append(listeners, l)
	}
	p.subMu.RUnlock()

	for _, l := range listeners {
		l(ctx, e)
	}
}
