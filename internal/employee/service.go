// internal/employee/service.go
package employee

import "context"

// Service defines the interface for employee management and sign-in.
type Service interface {
	List(ctx context.Context) []Employee
	Add(ctx context.Context, name, password string, position Position) (*Employee, error)
	Delete(ctx context.Context, username string) bool
	Update(ctx context.Context, username, password, position, name string) UpdateResult
	Authenticate(ctx context.Context, username, password string) (*Employee, Role)
	LogIn(ctx context.Context, username, password string) (*Employee, Role)
	LogOut(ctx context.Context, e *Employee) error
	Bootstrap(ctx context.Context, name, password string) (*Employee, error)
}
