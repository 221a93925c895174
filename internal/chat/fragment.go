package chat

import "errors"

// FragmentKind tells a text fragment apart from the two terminal markers.
type FragmentKind int

const (
	FragmentText FragmentKind = iota
	FragmentDone
	FragmentFailed
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentText:
		return "text"
	case FragmentDone:
		return "done"
	case FragmentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fragment is one element of a streamed reply. Done and Failed are terminal:
// producers close the channel right after sending one of them.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}

func Text(s string) Fragment { return Fragment{Kind: FragmentText, Text: s} }

func Done() Fragment { return Fragment{Kind: FragmentDone} }

func Failed(err error) Fragment { return Fragment{Kind: FragmentFailed, Err: err} }

// Reason returns the reason code of a failure fragment: "timeout",
// "transport" or "cancelled". Empty for other fragments.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "transport"
	}
}
