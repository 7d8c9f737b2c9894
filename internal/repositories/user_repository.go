package repositories

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"marketplace-service/internal/models"
)

// UserRepository keeps the directory of users seen by the service, used to
// resolve participant names and last-seen times.
type UserRepository interface {
	UpsertUser(ctx context.Context, account models.Account) error
	BulkUsers(ctx context.Context, ids []string) ([]models.ChatUser, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpsertUser records the latest name and role of an authenticated account.
func (r *UserRepo) UpsertUser(ctx context.Context, account models.Account) error {
	_, err := execBuilt(ctx, r.db, psql.Insert("users").
		Columns("id", "name", "role").
		Values(account.AccountID(), account.DisplayName(), string(account.AccountRole())).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, updated_at = NOW()"))
	return err
}

// BulkUsers fetches multiple users in one query. Unknown ids are skipped.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []string) ([]models.ChatUser, error) {
	if len(ids) == 0 {
		return []models.ChatUser{}, nil
	}
	var rows []struct {
		ID       string     `db:"id"`
		Name     string     `db:"name"`
		Role     string     `db:"role"`
		LastSeen *time.Time `db:"last_seen"`
	}
	if err := selectBuilt(ctx, r.db, &rows, psql.Select("id", "name", "role", "last_seen").
		From("users").
		Where(sq.Eq{"id": ids})); err != nil {
		return nil, err
	}

	users := make([]models.ChatUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, models.ChatUser{
			ID:       row.ID,
			Name:     row.Name,
			Role:     models.Role(row.Role),
			LastSeen: row.LastSeen,
		})
	}
	return users, nil
}

// TouchLastSeen stamps the user's last-seen time.
func (r *UserRepo) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := execBuilt(ctx, r.db, psql.Update("users").Set("last_seen", at).Where(sq.Eq{"id": userID}))
	return err
}
