package inmemdb

import (
	"context"
	"sort"
	"strconv"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil)

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) GetAssignment(_ context.Context, id string, _ ...core.DBExecutor) (submission.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.data.assignments[id]; ok {
		return a, nil
	}
	return submission.Assignment{}, submission.ErrNotFound
}

// LockSubmissionSlot is a no-op: transactions are already serialized.
func (repo *submissionRepository) LockSubmissionSlot(_ context.Context, _, _ string, _ ...core.DBExecutor) error {
	return repo.db.fault("LockSubmissionSlot")
}

func (repo *submissionRepository) GetSubmissionStats(_ context.Context, assignmentID, userID string, _ ...core.DBExecutor) (submission.Stats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats submission.Stats
	for _, sub := range repo.db.data.submissions {
		if sub.AssignmentID == assignmentID && sub.UserID == userID {
			stats.Count++
			if sub.SubmissionNumber > stats.MaxNumber {
				stats.MaxNumber = sub.SubmissionNumber
			}
		}
	}
	return stats, nil
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub submission.Submission, _ ...core.DBExecutor) (submission.Submission, error) {
	if err := repo.db.fault("CreateSubmission"); err != nil {
		return submission.Submission{}, err
	}
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := key(sub.AssignmentID, sub.UserID, strconv.Itoa(sub.SubmissionNumber))
	if _, ok := repo.db.data.submissions[k]; ok {
		return submission.Submission{}, core.ErrTxConflict
	}
	repo.db.data.submissions[k] = sub
	return sub, nil
}

func (repo *submissionRepository) ListSubmissions(_ context.Context, assignmentID, userID string, _ ...core.DBExecutor) ([]submission.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]submission.Submission, 0)
	for _, sub := range repo.db.data.submissions {
		if sub.AssignmentID == assignmentID && sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmissionNumber < subs[j].SubmissionNumber })
	return subs, nil
}

// AddAssignment stores a as is.
func (db *DB) AddAssignment(a submission.Assignment) submission.Assignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.assignments[a.ID] = a
	return a
}
