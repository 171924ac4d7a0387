package postgres

import (
	"context"
	"errors"
	"fmt"

	"elearning-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

const userColumns = `id, username, email, password_hash, is_active, role, level, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u           domain.User
		role, level string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &role, &level, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	u.Role, u.Level = domain.Role(role), domain.Level(level)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.Level == "" {
		user.Level = domain.LevelBeginner
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, role, level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		user.Username, user.Email, user.PasswordHash, user.IsActive, string(user.Role), string(user.Level),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == uniqueViolation {
			return domain.User{}, domain.ErrUserExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, err
}

func (s *Store) UpdateLevel(ctx context.Context, userID int64, level domain.Level) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET level = $2 WHERE id = $1`, userID, string(level))
	if err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateCourse(ctx context.Context, course domain.Course) (domain.Course, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO courses (title, teacher_id) VALUES ($1, $2) RETURNING id`,
		course.Title, course.TeacherID,
	).Scan(&course.ID)
	if err != nil {
		if code, _ := pgErrorCode(err); code == foreignKeyViolation {
			return domain.Course{}, domain.ErrUserNotFound
		}
		return domain.Course{}, fmt.Errorf("create course: %w", err)
	}
	return course, nil
}

func (s *Store) GetCourse(ctx context.Context, courseID int64) (domain.Course, error) {
	var c domain.Course
	err := s.pool.QueryRow(ctx, `SELECT id, title, teacher_id FROM courses WHERE id = $1`, courseID).
		Scan(&c.ID, &c.Title, &c.TeacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	if err != nil {
		return domain.Course{}, fmt.Errorf("get course %d: %w", courseID, err)
	}
	return c, nil
}
