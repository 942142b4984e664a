package app

import "asq-order-service/internal/domain"

// Latest holds the current submission per group key.
type Latest[K comparable] struct {
	// Keys lists group keys in order of first appearance in the input.
	Keys    []K
	Entries map[K]domain.Submission
}

// ReduceLatest scans subs once and keeps, per key, the submission with the
// greatest SubmitDate. When dates tie the record later in subs wins, so subs must
// be in log order. Every view derives its "current answer" from this function.
func ReduceLatest[K comparable](subs []domain.Submission, key func(domain.Submission) K) Latest[K] {
	latest := Latest[K]{
		Keys:    make([]K, 0),
		Entries: make(map[K]domain.Submission),
	}
	for _, sub := range subs {
		k := key(sub)
		current, ok := latest.Entries[k]
		if !ok {
			latest.Keys = append(latest.Keys, k)
			latest.Entries[k] = sub
			continue
		}
		// Equal dates fall through to the later record.
		if !sub.SubmitDate.Before(current.SubmitDate) {
			latest.Entries[k] = sub
		}
	}
	return latest
}

// Values returns the kept submissions in first-appearance order of their keys.
func (l Latest[K]) Values() []domain.Submission {
	out := make([]domain.Submission, 0, len(l.Keys))
	for _, k := range l.Keys {
		out = append(out, l.Entries[k])
	}
	return out
}

func byAnsweree(s domain.Submission) string { return s.Answeree }

func byQuestion(s domain.Submission) string { return s.QuestionUID }

type answereeQuestion struct {
	answeree string
	question string
}

func byAnswereeAndQuestion(s domain.Submission) answereeQuestion {
	return answereeQuestion{answeree: s.Answeree, question: s.QuestionUID}
}
