package domain

import "time"

// QuestionType is the type tag owned by the ordering question plugin.
const QuestionType = "asq-order-q"

// Question is an ordering question as produced by markup definition.
// Items hold the orderable item identifiers in authored order.
type Question struct {
	UID            string   `json:"uid"`
	Type           string   `json:"type"`
	PresentationID string   `json:"presentationId"`
	Stem           string   `json:"stem"`
	HTML           string   `json:"html"`
	Items          []string `json:"items"`
}

// Submission is one answer event. Records are never rewritten; a correction is a
// new record with a later SubmitDate for the same (question, answeree, session).
type Submission struct {
	Seq         uint64    `json:"seq"` // log position, assigned by the store
	QuestionUID string    `json:"questionUid"`
	ExerciseID  string    `json:"exerciseId,omitempty"`
	Answeree    string    `json:"answeree"`
	Session     string    `json:"session"`
	Type        string    `json:"type"`
	Items       []string  `json:"submission"`
	SubmitDate  time.Time `json:"submitDate"`
	Confidence  *int      `json:"confidence,omitempty"`
}

// AnswerRequest is the inbound submission shape shared by every question type.
type AnswerRequest struct {
	QuestionUID string   `json:"questionUid"`
	ExerciseID  string   `json:"exerciseId"`
	Answeree    string   `json:"answeree"`
	Session     string   `json:"session"`
	Submission  []string `json:"submission"`
	Confidence  *int     `json:"confidence,omitempty"`

	// HandledBy is set by the ingest handler that stored the answer.
	HandledBy string `json:"-"`
}

// SubmissionFilter selects log records. Empty string fields match anything;
// a non-nil Questions slice restricts QuestionUID to its members.
type SubmissionFilter struct {
	Session     string
	Question    string
	Participant string
	Questions   []string
}

// Matches reports whether s passes every constraint of the filter.
func (f SubmissionFilter) Matches(s Submission) bool {
	if f.Session != "" && s.Session != f.Session {
		return false
	}
	if f.Question != "" && s.QuestionUID != f.Question {
		return false
	}
	if f.Participant != "" && s.Answeree != f.Participant {
		return false
	}
	if f.Questions != nil {
		for _, uid := range f.Questions {
			if uid == s.QuestionUID {
				return true
			}
		}
		return false
	}
	return true
}

// PresenterEntry is one participant's latest submission for a question.
type PresenterEntry struct {
	ParticipantID string    `json:"participantId"`
	Submission    []string  `json:"submission"`
	SubmitDate    time.Time `json:"submitDate"`
}

// ViewerEntry is the viewer's latest order for one question.
type ViewerEntry struct {
	UID    string   `json:"uid"`
	Orders []string `json:"orders"`
}

// ConnectInfo describes a presenter or viewer socket that just (re)connected.
type ConnectInfo struct {
	SocketID       string
	SessionID      string
	PresentationID string
	// WhitelistID is the participant identity the viewer may see; set by the caller.
	WhitelistID string
}

// Document is markup handed to the definition hook. Handlers may rewrite HTML
// and append the questions they extracted.
type Document struct {
	PresentationID string
	HTML           string
	Questions      []Question
}
