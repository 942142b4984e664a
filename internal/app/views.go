package app

import "asq-order-service/internal/domain"

// BuildPresenterView projects subs, already scoped to one (session, question), to
// one entry per participant holding that participant's latest order.
func BuildPresenterView(subs []domain.Submission) []domain.PresenterEntry {
	latest := ReduceLatest(subs, byAnsweree)
	return presenterEntries(latest.Values())
}

// BuildViewerView projects subs, already scoped to one (session, participant), to
// one entry per answered question.
func BuildViewerView(subs []domain.Submission) []domain.ViewerEntry {
	latest := ReduceLatest(subs, byQuestion)
	entries := make([]domain.ViewerEntry, 0, len(latest.Keys))
	for _, sub := range latest.Values() {
		entries = append(entries, domain.ViewerEntry{
			UID:    sub.QuestionUID,
			Orders: cloneItems(sub.Items),
		})
	}
	return entries
}

// buildPresenterBundle reduces subs spanning several questions by (participant,
// question) and groups the result per question. Every uid in questionUIDs gets an
// entry, with an empty submission list when nobody answered.
func buildPresenterBundle(questionUIDs []string, subs []domain.Submission) []domain.PresenterQuestion {
	latest := ReduceLatest(subs, byAnswereeAndQuestion)
	grouped := make(map[string][]domain.Submission, len(questionUIDs))
	for _, sub := range latest.Values() {
		grouped[sub.QuestionUID] = append(grouped[sub.QuestionUID], sub)
	}
	bundle := make([]domain.PresenterQuestion, 0, len(questionUIDs))
	for _, uid := range questionUIDs {
		bundle = append(bundle, domain.PresenterQuestion{
			UID:         uid,
			Submissions: presenterEntries(grouped[uid]),
		})
	}
	return bundle
}

func presenterEntries(subs []domain.Submission) []domain.PresenterEntry {
	entries := make([]domain.PresenterEntry, 0, len(subs))
	for _, sub := range subs {
		entries = append(entries, domain.PresenterEntry{
			ParticipantID: sub.Answeree,
			Submission:    cloneItems(sub.Items),
			SubmitDate:    sub.SubmitDate,
		})
	}
	return entries
}

func cloneItems(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	return out
}
