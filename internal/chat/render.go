package chat

// Outcome is how a fold ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	// OutcomeCancelled means the stream ended without a terminal marker or the
	// message was frozen by someone else (a newer submission or a deletion).
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fold appends every text fragment to msg in arrival order until a terminal
// marker arrives or the channel closes. Done freezes msg; Failed freezes it at
// the partial content with the failure attached; a bare close freezes it as is.
func Fold(msg *Message, fragments <-chan Fragment) Outcome {
	for f := range fragments {
		switch f.Kind {
		case FragmentText:
			if err := msg.Append(f.Text); err != nil {
				return OutcomeCancelled
			}
		case FragmentDone:
			if !msg.Freeze() {
				return OutcomeCancelled
			}
			return OutcomeCompleted
		case FragmentFailed:
			cause := f.Err
			if cause == nil {
				cause = ErrTransport
			}
			if !msg.Fail(cause) {
				return OutcomeCancelled
			}
			return OutcomeFailed
		}
	}
	msg.Freeze()
	return OutcomeCancelled
}
