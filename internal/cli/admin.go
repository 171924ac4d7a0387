package cli

import (
	"context"
	"fmt"

	"elearning-quiz-service/internal/auth"
	"elearning-quiz-service/internal/domain"
	pgstore "elearning-quiz-service/internal/infra/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewUserCmd manages accounts directly in Postgres.
func NewUserCmd(configPath *string) *cobra.Command {
	var (
		username string
		email    string
		password string
		role     string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			return withPostgres(cmd.Context(), *configPath, func(ctx context.Context, st *pgstore.Store, log *zap.Logger) error {
				user, err := st.CreateUser(ctx, domain.User{
					Username:     username,
					Email:        email,
					PasswordHash: hash,
					Role:         r,
					IsActive:     true,
				})
				if err != nil {
					return err
				}
				log.Info("user created", zap.Int64("id", user.ID), zap.String("email", user.Email), zap.String("role", string(user.Role)))
				return nil
			})
		},
	}
	create.Flags().StringVar(&username, "username", "", "unique username")
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", string(domain.RoleStudent), "student, teacher or admin")
	for _, f := range []string{"username", "email", "password"} {
		_ = create.MarkFlagRequired(f)
	}

	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(create)
	return cmd
}

func NewCourseCmd(configPath *string) *cobra.Command {
	var (
		title     string
		teacherID int64
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a course owned by a teacher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd.Context(), *configPath, func(ctx context.Context, st *pgstore.Store, log *zap.Logger) error {
				teacher, err := st.GetUser(ctx, teacherID)
				if err != nil {
					return err
				}
				if teacher.Role != domain.RoleTeacher {
					return fmt.Errorf("user %d is a %s, not a teacher", teacherID, teacher.Role)
				}
				course, err := st.CreateCourse(ctx, domain.Course{Title: title, TeacherID: teacherID})
				if err != nil {
					return err
				}
				log.Info("course created", zap.Int64("id", course.ID), zap.String("title", course.Title))
				return nil
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "course title")
	create.Flags().Int64Var(&teacherID, "teacher-id", 0, "id of the owning teacher")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("teacher-id")

	cmd := &cobra.Command{Use: "course", Short: "Manage courses"}
	cmd.AddCommand(create)
	return cmd
}

func withPostgres(ctx context.Context, configPath string, fn func(context.Context, *pgstore.Store, *zap.Logger) error) error {
	cfg, log, err := loadWithLogger(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pgstore.NewStore(pool), log)
}
