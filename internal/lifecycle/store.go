package lifecycle

import (
	"context"

	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/repository"
)

// Store is the direct data path the manager reads from and, during the
// second reset phase, bulk deletes through. Lookups report missing rows
// with repository.ErrNotFound.
type Store interface {
	SessionForUser(ctx context.Context, userID string) (model.ChatSession, error)
	Transcript(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	LatestAssessment(ctx context.Context, userID string) (model.Assessment, error)
	DeleteAssessment(ctx context.Context, userID, assessmentID string) error
	DeletePlansForAssessment(ctx context.Context, userID, assessmentID string) (int64, error)
	DeleteMessagesByUser(ctx context.Context, userID string) (int64, error)
	DeleteSessionsByUser(ctx context.Context, userID string) (int64, error)
	DeleteAssessmentsByUser(ctx context.Context, userID string) (int64, error)
	DeletePlansByUser(ctx context.Context, userID string) (int64, error)
}

// RepoStore implements Store over the SQL repositories.
type RepoStore struct {
	Sessions    *repository.SessionRepo
	Messages    *repository.MessageRepo
	Assessments *repository.AssessmentRepo
	Plans       *repository.ActionPlanRepo
}

func (s RepoStore) SessionForUser(ctx context.Context, userID string) (model.ChatSession, error) {
	return s.Sessions.GetByUser(ctx, userID)
}

func (s RepoStore) Transcript(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	return s.Messages.ListBySession(ctx, sessionID, limit)
}

func (s RepoStore) LatestAssessment(ctx context.Context, userID string) (model.Assessment, error) {
	return s.Assessments.LatestByUser(ctx, userID)
}

func (s RepoStore) DeleteAssessment(ctx context.Context, userID, assessmentID string) error {
	return s.Assessments.DeleteForUser(ctx, userID, assessmentID)
}

func (s RepoStore) DeletePlansForAssessment(ctx context.Context, userID, assessmentID string) (int64, error) {
	return s.Plans.DeleteByAssessment(ctx, userID, assessmentID)
}

func (s RepoStore) DeleteMessagesByUser(ctx context.Context, userID string) (int64, error) {
	return s.Messages.DeleteByUser(ctx, userID)
}

func (s RepoStore) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	return s.Sessions.DeleteByUser(ctx, userID)
}

func (s RepoStore) DeleteAssessmentsByUser(ctx context.Context, userID string) (int64, error) {
	return s.Assessments.DeleteByUser(ctx, userID)
}

func (s RepoStore) DeletePlansByUser(ctx context.Context, userID string) (int64, error) {
	return s.Plans.DeleteByUser(ctx, userID)
}
