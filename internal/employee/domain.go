// internal/employee/domain.go
package employee

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for stored credentials.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// Position is an employee's job title as stored in the database.
type Position string

const (
	Cashier Position = "Cashier"
	Admin   Position = "Admin"
)

// ParsePosition matches a position name, ignoring case.
func ParsePosition(s string) (Position, bool) {
	for _, p := range []Position{Cashier, Admin} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, true
		}
	}
	return "", false
}

// Role is the result of a login attempt.
type Role int

const (
	RoleNone    Role = 0
	RoleCashier Role = 1
	RoleAdmin   Role = 2
)

func (p Position) Role() Role {
	switch p {
	case Admin:
		return RoleAdmin
	case Cashier:
		return RoleCashier
	}
	return RoleNone
}

// UpdateResult is the outcome code of Update.
type UpdateResult int

const (
	Updated         UpdateResult = 0
	NotFound        UpdateResult = -1
	InvalidPosition UpdateResult = -2
)

// Employee is one line of the employee database:
// `username position passwordHash salt first last...`.
type Employee struct {
	Username     string   `json:"username"`
	Name         string   `json:"name"`
	Position     Position `json:"position"`
	PasswordHash string   `json:"-"`
	Salt         string   `json:"-"`
}

func parseEmployee(line string) (Employee, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Employee{}, fmt.Errorf("want at least 5 fields, got %d", len(fields))
	}
	pos, ok := ParsePosition(fields[1])
	if !ok {
		return Employee{}, fmt.Errorf("unknown position %q", fields[1])
	}
	return Employee{
		Username:     fields[0],
		Position:     pos,
		PasswordHash: fields[2],
		Salt:         fields[3],
		Name:         strings.Join(fields[4:], " "),
	}, nil
}

func (e Employee) record() string {
	return fmt.Sprintf("%s %s %s %s %s", e.Username, e.Position, e.PasswordHash, e.Salt, e.Name)
}

// setPassword stores a fresh salt and the Argon2id key of password.
func (e *Employee) setPassword(password string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	e.Salt = base64.StdEncoding.EncodeToString(salt)
	e.PasswordHash = base64.StdEncoding.EncodeToString(deriveKey(password, salt))
	return nil
}

// checkPassword reports whether password matches the stored credentials.
// Records with an undecodable hash or salt are an error.
func (e Employee) checkPassword(password string) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(e.Salt)
	if err != nil {
		return false, fmt.Errorf("employee %s: bad salt: %w", e.Username, err)
	}
	want, err := base64.StdEncoding.DecodeString(e.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("employee %s: bad password hash: %w", e.Username, err)
	}
	return subtle.ConstantTimeCompare(want, deriveKey(password, salt)) == 1, nil
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
