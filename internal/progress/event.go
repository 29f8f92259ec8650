package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Kind names the milestone an Event represents.
type Kind string

// Supported event kinds. Page and item kinds come from the scraper; job kinds
// are added by the job manager.
const (
	KindJobStart  Kind = "job_start"
	KindPageStart Kind = "page_start"
	KindItemStart Kind = "item_start"
	KindItemDone  Kind = "item_done"
	KindPageDone  Kind = "page_done"
	KindJobDone   Kind = "job_done"
	KindJobError  Kind = "job_error"
)

// Item outcomes carried by KindItemDone events.
const (
	ItemOK    = "ok"
	ItemError = "error"
)

// Event is one progress milestone.
type Event struct {
	// JobID is empty for events emitted outside a job.
	JobID string
	// TS is stamped by the emitter when left zero.
	TS time.Time
	// Seq counts accepted events per job, starting at 1. Gaps mean the hub
	// dropped events under backpressure.
	Seq    uint64
	Kind   Kind
	Target rag.PageTarget
	URL    string

	// Item fields, set on item_start and item_done.
	Title  string
	Link   string
	Index  int
	Status string

	// Total is the number of listed items on the page, before truncation.
	Total int
	// OK and Failed carry page outcomes on page_done.
	OK     int
	Failed int

	Err string
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindJobStart, KindJobDone, KindJobError, KindPageStart, KindPageDone:
	case KindItemStart:
		if e.Index < 1 {
			return errors.New("item start requires a 1-based index")
		}
	case KindItemDone:
		if e.Index < 1 {
			return errors.New("item done requires a 1-based index")
		}
		if e.Status != ItemOK && e.Status != ItemError {
			return fmt.Errorf("item done has unknown status %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// IsFailure reports whether the event records an error.
func (e Event) IsFailure() bool {
	return e.Err != "" || e.Status == ItemError || e.Kind == KindJobError
}
