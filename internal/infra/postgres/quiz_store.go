package postgres

import (
	"context"
	"errors"
	"fmt"

	"elearning-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// LoadQuiz reads a quiz with its questions and options from one snapshot.
func (s *Store) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.BeginTxFunc(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, title, course_id, created_at FROM quizzes WHERE id = $1`, quizID).
			Scan(&quiz.ID, &quiz.Title, &quiz.CourseID, &quiz.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return err
		}
		questions, err := loadQuestions(ctx, tx, []int64{quizID})
		if err != nil {
			return err
		}
		quiz.Questions = questions[quizID]
		return nil
	})
	if errors.Is(err, domain.ErrQuizNotFound) {
		return domain.Quiz{}, err
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %d: %w", quizID, err)
	}
	if quiz.Questions == nil {
		quiz.Questions = []domain.Question{}
	}
	return quiz, nil
}

func (s *Store) ListQuizzesByCourse(ctx context.Context, courseID int64) ([]domain.Quiz, error) {
	quizzes := make([]domain.Quiz, 0)
	err := s.pool.BeginTxFunc(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, title, course_id, created_at FROM quizzes WHERE course_id = $1 ORDER BY id`, courseID)
		if err != nil {
			return err
		}
		ids := make([]int64, 0)
		for rows.Next() {
			var q domain.Quiz
			if err := rows.Scan(&q.ID, &q.Title, &q.CourseID, &q.CreatedAt); err != nil {
				rows.Close()
				return err
			}
			quizzes = append(quizzes, q)
			ids = append(ids, q.ID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		questions, err := loadQuestions(ctx, tx, ids)
		if err != nil {
			return err
		}
		for i := range quizzes {
			quizzes[i].Questions = questions[quizzes[i].ID]
			if quizzes[i].Questions == nil {
				quizzes[i].Questions = []domain.Question{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list quizzes for course %d: %w", courseID, err)
	}
	return quizzes, nil
}

// loadQuestions returns questions with options grouped by quiz id, both ordered by id.
func loadQuestions(ctx context.Context, db querier, quizIDs []int64) (map[int64][]domain.Question, error) {
	rows, err := db.Query(ctx, `
		SELECT q.quiz_id, q.id, q.prompt, o.id, o.text, o.is_correct
		FROM quiz_questions q
		LEFT JOIN quiz_options o ON o.question_id = q.id
		WHERE q.quiz_id = ANY($1)
		ORDER BY q.quiz_id, q.id, o.id`, quizIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]domain.Question, len(quizIDs))
	for rows.Next() {
		var (
			quizID, questionID int64
			prompt             string
			optionID           *int64
			text               *string
			correct            *bool
		)
		if err := rows.Scan(&quizID, &questionID, &prompt, &optionID, &text, &correct); err != nil {
			return nil, err
		}
		questions := out[quizID]
		if n := len(questions); n == 0 || questions[n-1].ID != questionID {
			questions = append(questions, domain.Question{
				ID:      questionID,
				QuizID:  quizID,
				Prompt:  prompt,
				Options: []domain.Option{},
			})
		}
		if optionID != nil {
			last := &questions[len(questions)-1]
			last.Options = append(last.Options, domain.Option{
				ID:         *optionID,
				QuestionID: questionID,
				Text:       *text,
				Correct:    *correct,
			})
		}
		out[quizID] = questions
	}
	return out, rows.Err()
}

func (s *Store) CreateQuiz(ctx context.Context, draft domain.QuizDraft) (domain.Quiz, error) {
	quiz := domain.Quiz{
		Title:     draft.Title,
		CourseID:  draft.CourseID,
		Questions: make([]domain.Question, 0, len(draft.Questions)),
	}
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO quizzes (title, course_id) VALUES ($1, $2) RETURNING id, created_at`,
			draft.Title, draft.CourseID,
		).Scan(&quiz.ID, &quiz.CreatedAt)
		if err != nil {
			if code, _ := pgErrorCode(err); code == foreignKeyViolation {
				return domain.ErrCourseNotFound
			}
			return err
		}

		for _, qd := range draft.Questions {
			question := domain.Question{QuizID: quiz.ID, Prompt: qd.Prompt, Options: make([]domain.Option, 0, len(qd.Options))}
			err := tx.QueryRow(ctx,
				`INSERT INTO quiz_questions (quiz_id, prompt) VALUES ($1, $2) RETURNING id`,
				quiz.ID, qd.Prompt,
			).Scan(&question.ID)
			if err != nil {
				return err
			}
			for _, od := range qd.Options {
				opt := domain.Option{QuestionID: question.ID, Text: od.Text, Correct: od.Correct}
				err := tx.QueryRow(ctx,
					`INSERT INTO quiz_options (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING id`,
					question.ID, od.Text, od.Correct,
				).Scan(&opt.ID)
				if err != nil {
					return err
				}
				question.Options = append(question.Options, opt)
			}
			quiz.Questions = append(quiz.Questions, question)
		}
		return nil
	})
	if errors.Is(err, domain.ErrCourseNotFound) {
		return domain.Quiz{}, err
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// DeleteQuiz removes attempts, options, questions and the quiz in one transaction.
// It returns the ids of users whose attempts were removed.
func (s *Store) DeleteQuiz(ctx context.Context, quizID int64) ([]int64, error) {
	var affected []int64
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM quiz_results WHERE quiz_id = $1 RETURNING user_id`, quizID)
		if err != nil {
			return err
		}
		seen := make(map[int64]bool)
		for rows.Next() {
			var userID int64
			if err := rows.Scan(&userID); err != nil {
				rows.Close()
				return err
			}
			if !seen[userID] {
				seen[userID] = true
				affected = append(affected, userID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		statements := []string{
			`DELETE FROM quiz_options WHERE question_id IN (SELECT id FROM quiz_questions WHERE quiz_id = $1)`,
			`DELETE FROM quiz_questions WHERE quiz_id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, quizID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrQuizNotFound
		}
		return nil
	})
	if errors.Is(err, domain.ErrQuizNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("delete quiz %d: %w", quizID, err)
	}
	return affected, nil
}
