package postgres

import (
	"database/sql"
	"fmt"

	"github.com/formulapm/access-management/internal/auth"
	"github.com/formulapm/access-management/internal/authz"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetCredentials returns the stored password hash and user id for an
// active account. Deactivated accounts behave like unknown emails.
func (r *Repository) GetCredentials(email string) (string, string, error) {
	var passwordHash string
	var userID string
	query := `SELECT id, password_hash FROM user_identities WHERE email = ? AND active = true`

	row := r.db.Raw(query, email).Row()
	if err := row.Scan(&userID, &passwordHash); err != nil {
		if err == sql.ErrNoRows {
			return "", "", fmt.Errorf("user not found")
		}
		return "", "", err
	}
	return passwordHash, userID, nil
}

// GetAuthUser loads the identity attributes the authorization layer
// needs for the authenticated caller.
func (r *Repository) GetAuthUser(userID string) (*auth.User, error) {
	var (
		user      auth.User
		role      string
		seniority string
	)

	query := `SELECT id, email, name, role, seniority, active FROM user_identities WHERE id = ?`

	row := r.db.Raw(query, userID).Row()
	if err := row.Scan(&user.Identity.ID, &user.Email, &user.Name, &role, &seniority, &user.Identity.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}

	user.Identity.Role = authz.Role(role)
	user.Identity.Seniority = authz.Seniority(seniority)
	return &user, nil
}
