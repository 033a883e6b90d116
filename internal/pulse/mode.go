package pulse

// Mode is the classification of the most recent unacknowledged press.
// Idle means nothing is pending; Short and Long are pending events that stay
// latched until acknowledged.
type Mode int

const (
	Idle Mode = iota
	Short
	Long
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "IDLE"
	case Short:
		return "SHORT_PULSE"
	case Long:
		return "LONG_PULSE"
	default:
		return "INVALID"
	}
}

// Valid reports whether m is one of Idle, Short or Long.
func (m Mode) Valid() bool {
	return m == Idle || m == Short || m == Long
}

// Pending reports whether m holds an unacknowledged press.
func (m Mode) Pending() bool {
	return m == Short || m == Long
}
