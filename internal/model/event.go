package model

import (
	"fmt"
	"strings"
)

// EventKind selects between addressed and broadcast notifications.
type EventKind string

const (
	EventIndividual EventKind = "individual"
	EventBroadcast  EventKind = "broadcast"
)

// Event is a request from a business workflow to create one notification.
type Event struct {
	Kind         EventKind `json:"kind"`
	TargetUserID string    `json:"user_id,omitempty"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	FormID       *string   `json:"form_id,omitempty"`
	SubmissionID *string   `json:"submission_id,omitempty"`
	ActorID      string    `json:"-"`
}

// Validate checks the event is internally consistent.
func (e Event) Validate() error {
	switch e.Kind {
	case EventIndividual:
		if e.TargetUserID == "" {
			return fmt.Errorf("individual notification requires a target user")
		}
	case EventBroadcast:
		if e.TargetUserID != "" {
			return fmt.Errorf("broadcast notification must not carry a target user")
		}
	default:
		return fmt.Errorf("unknown notification kind %q", e.Kind)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if e.ActorID == "" {
		return fmt.Errorf("actor is required")
	}
	return nil
}

// ToNotification builds the row to insert for this event.
func (e Event) ToNotification() *Notification {
	n := &Notification{
		Title:        e.Title,
		Message:      e.Message,
		CreatedBy:    e.ActorID,
		FormID:       e.FormID,
		SubmissionID: e.SubmissionID,
	}
	if e.Kind == EventIndividual {
		target := e.TargetUserID
		n.UserID = &target
	}
	return n
}

// FormAssigned builds the events for granting form access. With no targets the
// form is assigned to everyone and a single broadcast is produced; otherwise
// one individual event per addressed user.
func FormAssigned(actorID, actorName, formID, formName string, targets ...string) []Event {
	if len(targets) == 0 {
		return []Event{{
			Kind:    EventBroadcast,
			Title:   "New Form Assigned",
			Message: fmt.Sprintf("'%s' has assigned '%s' form to all users", actorName, formName),
			FormID:  &formID,
			ActorID: actorID,
		}}
	}

	events := make([]Event, 0, len(targets))
	for _, target := range targets {
		events = append(events, Event{
			Kind:         EventIndividual,
			TargetUserID: target,
			Title:        "New Form Assigned",
			Message:      fmt.Sprintf("'%s' has assigned '%s' form to you", actorName, formName),
			FormID:       &formID,
			ActorID:      actorID,
		})
	}
	return events
}

// FormAccessRemoved builds the event for revoking form access. An empty
// target revokes the everyone-assignment and broadcasts.
func FormAccessRemoved(actorID, actorName, formName, target string) Event {
	if target == "" {
		return Event{
			Kind:    EventBroadcast,
			Title:   "Form Access Removed",
			Message: fmt.Sprintf("'%s' admin removed the form access for '%s' form to all users", actorName, formName),
			ActorID: actorID,
		}
	}
	return Event{
		Kind:         EventIndividual,
		TargetUserID: target,
		Title:        "Form Access Removed",
		Message:      fmt.Sprintf("'%s' admin removed the form access for '%s' form to you", actorName, formName),
		ActorID:      actorID,
	}
}

// FlagRaised notifies the form owner that a submission was flagged.
func FlagRaised(flaggerID, flaggerName, formOwnerID, formID, formName, submissionID string) Event {
	return Event{
		Kind:         EventIndividual,
		TargetUserID: formOwnerID,
		Title:        "Flag Raised",
		Message:      fmt.Sprintf("'%s' raised a flag on '%s' form.", flaggerName, formName),
		FormID:       &formID,
		SubmissionID: &submissionID,
		ActorID:      flaggerID,
	}
}

// FlagResolved notifies the submission owner that their flag was approved or rejected.
func FlagResolved(resolution, reviewerID, reviewerName, submitterID, formID, formName, submissionID string) (Event, error) {
	resolution = strings.ToLower(resolution)
	if resolution != "approved" && resolution != "rejected" {
		return Event{}, fmt.Errorf("invalid flag resolution %q", resolution)
	}
	return Event{
		Kind:         EventIndividual,
		TargetUserID: submitterID,
		Title:        "Flag " + strings.ToUpper(resolution[:1]) + resolution[1:],
		Message:      fmt.Sprintf("Your submission for '%s' was %s by %s", formName, resolution, reviewerName),
		FormID:       &formID,
		SubmissionID: &submissionID,
		ActorID:      reviewerID,
	}, nil
}
