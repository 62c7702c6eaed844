package entity

type User struct {
	ID   int64  `json:"id"`
	DNI  string `json:"dni"`
	Name string `json:"name"`
}

// CreateUserRequest is the payload accepted by POST /api/users. The id is
// always generated by the database, so it is not part of the request.
type CreateUserRequest struct {
	DNI  string `json:"dni" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=100"`
}

// ToUser converts the request into a User that has not been persisted yet.
func (r CreateUserRequest) ToUser() *User {
	return &User{DNI: r.DNI, Name: r.Name}
}

/*
Mysql Schema (kept in sync by migrations.SyncUsers):

CREATE TABLE users (
	id INT AUTO_INCREMENT PRIMARY KEY,
	dni VARCHAR(20) NOT NULL,
	name VARCHAR(100) NOT NULL,
	UNIQUE KEY uniq_users_dni (dni)
);
*/
