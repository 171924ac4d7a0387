package postgres

import (
	"context"
	"errors"
	"fmt"

	"elearning-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

const resultColumns = `id, user_id, quiz_id, score, total, percentage::float8, passed, taken_at`

func (s *Store) FindPassed(ctx context.Context, userID, quizID int64) (domain.AttemptResult, bool, error) {
	var r domain.AttemptResult
	err := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM quiz_results WHERE user_id = $1 AND quiz_id = $2 AND passed LIMIT 1`,
		userID, quizID,
	).Scan(&r.ID, &r.UserID, &r.QuizID, &r.Score, &r.Total, &r.Percentage, &r.Passed, &r.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttemptResult{}, false, nil
	}
	if err != nil {
		return domain.AttemptResult{}, false, fmt.Errorf("find passed result: %w", err)
	}
	return r, true, nil
}

// InsertResult appends an attempt. A second passing row for the same user and quiz is
// rejected by quiz_results_one_pass_idx and reported as domain.ErrAlreadyPassed.
func (s *Store) InsertResult(ctx context.Context, result *domain.AttemptResult) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO quiz_results (user_id, quiz_id, score, total, percentage, passed, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		result.UserID, result.QuizID, result.Score, result.Total, result.Percentage, result.Passed, result.TakenAt,
	).Scan(&result.ID)
	if err == nil {
		return nil
	}

	switch code, constraint := pgErrorCode(err); {
	case code == uniqueViolation && constraint == "quiz_results_one_pass_idx":
		return domain.ErrAlreadyPassed
	case code == foreignKeyViolation && constraint == "quiz_results_quiz_id_fkey":
		return domain.ErrQuizNotFound
	case code == foreignKeyViolation && constraint == "quiz_results_user_id_fkey":
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("insert result: %w", err)
}

func (s *Store) ListResultsByUser(ctx context.Context, userID int64) ([]domain.AttemptResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM quiz_results WHERE user_id = $1 ORDER BY taken_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AttemptResult, 0)
	for rows.Next() {
		var r domain.AttemptResult
		if err := rows.Scan(&r.ID, &r.UserID, &r.QuizID, &r.Score, &r.Total, &r.Percentage, &r.Passed, &r.TakenAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
