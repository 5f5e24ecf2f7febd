package core

type State int

const (
	StateSetup State = iota
	StateExtracting
	StateProcessing
	StateAssembling
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "Setup"
	case StateExtracting:
		return "Extracting"
	case StateProcessing:
		return "Processing"
	case StateAssembling:
		return "Assembling"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
