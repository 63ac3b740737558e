package types

// AlertState tags where an alert is in its lifecycle. Progression is
// one-way: active alerts may become triggered, never the reverse.
type AlertState string

const (
	StateActive    AlertState = "active"
	StateTriggered AlertState = "triggered"
)

type Alert struct {
	ID          int64      `json:"id"`
	ChatID      int64      `json:"chat_id"`
	Symbol      string     `json:"symbol"`
	TargetPrice float64    `json:"target_price"`
	LastPrice   *float64   `json:"last_price"` // nil until the first observation
	State       AlertState `json:"state"`
	CreatedAt   string     `json:"created_at"`
}

// Triggered reports whether the alert has already fired.
func (a Alert) Triggered() bool {
	return a.State == StateTriggered
}
