package engine

// Direction tags a recorded message as inbound or outbound.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Record is one conversation fact handed to the observer.
type Record struct {
	TurnID    string
	UserID    int64
	Direction Direction
	NodeID    string
	Text      string
	Variable  string
}

// Observer receives conversation records without being able to slow the
// turn down. Implementations must not block; failures stay on their side.
type Observer interface {
	Observe(rec Record)
}

// observe tolerates a nil observer.
func (c *Controller) observe(rec Record) {
	if c.observer != nil {
		c.observer.Observe(rec)
	}
}
