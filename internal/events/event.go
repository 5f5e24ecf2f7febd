package events

type Step string

const (
	StepSetup    Step = "setup"
	StepExtract  Step = "extract"
	StepProcess  Step = "process"
	StepVideo    Step = "video"
	StepComplete Step = "complete"
	StepError    Step = "error"
)

// Event is one progress report. Progress is 0..100 and never goes down,
// except for the error event which resets it to 0.
type Event struct {
	Step     Step   `json:"step"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

func New(step Step, message string, progress int) Event {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return Event{Step: step, Message: message, Progress: progress}
}

func NewError(message string) Event {
	return Event{Step: StepError, Message: message, Progress: 0}
}

func (e Event) Terminal() bool {
	return e.Step == StepComplete || e.Step == StepError
}
