package campaign

import (
	"fmt"
	"time"

	"zapfacil/internal/contacts"
	"zapfacil/internal/report"
)

type Status int32

const (
	Idle Status = iota
	Running
	Paused
	Stopped
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Config describes one campaign. Immutable once a run starts.
type Config struct {
	Source  contacts.SourceType
	Message string

	// AttachmentPath is an optional media/document file sent after the
	// text; AudioPath is the optional voice clip. Both may be empty.
	AttachmentPath string
	AudioPath      string

	// ContactListPath feeds FileList/GroupList sources.
	ContactListPath string
	// ManualContacts feeds the ManualList source.
	ManualContacts []contacts.ManualEntry
}

type OutcomeKind int

const (
	// OutcomeSuccess: message and all configured attachments delivered.
	OutcomeSuccess OutcomeKind = iota
	// OutcomePartial: text delivered but at least one attachment failed.
	OutcomePartial
	// OutcomeFailure: the conversation could not be opened or the send
	// errored out.
	OutcomeFailure
)

// Outcome is the per-recipient result. Failures carry a reason; they are
// values, never errors - a failed recipient does not abort the run.
type Outcome struct {
	Recipient contacts.Contact
	Kind      OutcomeKind
	Reason    string
}

func (o Outcome) statusLabel() string {
	switch o.Kind {
	case OutcomeSuccess:
		return report.StatusSuccess
	case OutcomePartial:
		return report.StatusPartial
	default:
		return report.StatusFailure
	}
}

// Progress is the payload of campaign.progress events.
type Progress struct {
	Index      int
	Total      int
	Identifier string
}

// Result is the payload of campaign.done events.
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Total    int
	Success  int
	Failed   int
	Report   string
}
