package domain

// Event names pushed to presenter and viewer sockets.
const (
	EventProgress         = "progress"
	EventRestorePresenter = "restorePresenter"
	EventRestoreViewer    = "restoreViewer"
)

// Roles a socket can join within a session.
const (
	RolePresenter = "ctrl"
	RoleViewer    = "viewer"
)

// ProgressEvent carries the full current aggregate for one question.
// Consumers replace their prior view of the question with it.
type ProgressEvent struct {
	QuestionType string           `json:"questionType"`
	QuestionUID  string           `json:"questionUid"`
	Submissions  []PresenterEntry `json:"submissions"`
}

// PresenterQuestion is one question of a presenter restore bundle.
type PresenterQuestion struct {
	UID         string           `json:"uid"`
	Submissions []PresenterEntry `json:"submissions"`
}

// RestorePresenterEvent rebuilds the presenter console after (re)connect.
type RestorePresenterEvent struct {
	QuestionType string              `json:"questionType"`
	Questions    []PresenterQuestion `json:"questions"`
}

// RestoreViewerEvent rebuilds one viewer's answers after (re)connect.
type RestoreViewerEvent struct {
	QuestionType string        `json:"questionType"`
	Questions    []ViewerEntry `json:"questions"`
}
