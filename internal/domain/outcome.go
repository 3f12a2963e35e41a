package domain

// Outcome is the terminal state reached by the listing workflow for one item.
type Outcome int

const (
	OutcomeSkipped       Outcome = iota // already in the progress record
	OutcomeAlreadyListed                // page shows the item as listed
	OutcomeListed                       // listing submitted and signed
	OutcomeUnrecognized                 // status element missing or with unknown markup
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAlreadyListed:
		return "already_listed"
	case OutcomeListed:
		return "listed"
	case OutcomeUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}
