package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"user-service/internal/entity"
	"user-service/migrations"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrDuplicateDNI = errors.New("duplicate dni")
)

// mysqlDuplicateEntry is ER_DUP_ENTRY, raised by the unique index on users.dni.
const mysqlDuplicateEntry = 1062

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db}
}

// Authenticate verifies that the database is reachable with the configured credentials.
func (r *UserRepository) Authenticate(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Sync reconciles the users table schema.
func (r *UserRepository) Sync(ctx context.Context, mode migrations.SyncMode) error {
	return migrations.SyncUsers(ctx, r.db, mode)
}

func (r *UserRepository) FindAll(ctx context.Context) ([]*entity.User, error) {
	users := []*entity.User{}

	query := `SELECT id, dni, name FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var user entity.User
		if err := rows.Scan(&user.ID, &user.DNI, &user.Name); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// FindByID looks a user up by primary key. The id is passed to MySQL as-is and
// converted there, so a non numeric id simply matches nothing.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT id, dni, name FROM users WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) FindByDNI(ctx context.Context, dni string) (*entity.User, error) {
	query := `SELECT id, dni, name FROM users WHERE dni = ? LIMIT 1`
	return r.findOne(ctx, query, dni)
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) (*entity.User, error) {
	query := `INSERT INTO users (dni, name) VALUES (?, ?)`
	res, err := r.db.ExecContext(ctx, query, user.DNI, user.Name)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil, ErrDuplicateDNI
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	created := *user
	created.ID = id
	return &created, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg interface{}) (*entity.User, error) {
	user := &entity.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.DNI, &user.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}
