// internal/employee/implementation.go
package employee

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"retailpos/pkg/flatstore"
)

const (
	firstUsername = 110001
	auditLayout   = "2006-01-02 15:04:05"
)

var (
	ErrInvalidEmployee = errors.New("employee needs a name and a password")
	ErrAlreadySeeded   = errors.New("employee database is not empty")
)

// service implements the Service interface.
type service struct {
	store       *flatstore.Store
	path        string
	auditPath   string
	rateLimiter *rate.Limiter
	now         func() time.Time
	logger      *log.Logger
}

// Option configures the employee service.
type Option func(*service)

// WithRateLimiter replaces the login attempt limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *service) { s.rateLimiter = l }
}

// WithClock overrides the clock used for audit lines.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// NewService creates an employee service over the database at path. Sign-ins
// and sign-outs are appended to auditPath.
func NewService(store *flatstore.Store, path, auditPath string, opts ...Option) Service {
	s := &service{
		store:       store,
		path:        path,
		auditPath:   auditPath,
		rateLimiter: rate.NewLimiter(rate.Every(12*time.Second), 5), // 5 attempts per minute
		now:         time.Now,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every employee in file order. An unreadable database reads as
// empty.
func (s *service) List(ctx context.Context) []Employee {
	employees, err := s.load(ctx)
	if err != nil {
		s.logger.Printf("employee: list: %v", err)
		return []Employee{}
	}
	return employees
}

// Add hires name under the next free username.
func (s *service) Add(ctx context.Context, name, password string, position Position) (*Employee, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || password == "" {
		return nil, ErrInvalidEmployee
	}
	if position.Role() == RoleNone {
		return nil, fmt.Errorf("%w: unknown position %q", ErrInvalidEmployee, position)
	}

	employees, err := s.load(ctx)
	if err != nil && !errors.Is(err, flatstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to read employees: %w", err)
	}

	e := Employee{
		Username: nextUsername(employees),
		Name:     name,
		Position: position,
	}
	if err := e.setPassword(password); err != nil {
		return nil, err
	}
	if err := s.save(ctx, append(employees, e)); err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes username. It reports false when there is no such employee
// or the database cannot be written.
func (s *service) Delete(ctx context.Context, username string) bool {
	employees, err := s.load(ctx)
	if err != nil {
		s.logger.Printf("employee: delete %s: %v", username, err)
		return false
	}
	idx := indexOf(employees, username)
	if idx < 0 {
		return false
	}
	if err := s.save(ctx, slices.Delete(employees, idx, idx+1)); err != nil {
		s.logger.Printf("employee: delete %s: %v", username, err)
		return false
	}
	return true
}

// Update changes the non-empty fields of username.
func (s *service) Update(ctx context.Context, username, password, position, name string) UpdateResult {
	employees, err := s.load(ctx)
	if err != nil {
		s.logger.Printf("employee: update %s: %v", username, err)
		return NotFound
	}
	idx := indexOf(employees, username)
	if idx < 0 {
		return NotFound
	}

	e := employees[idx]
	if position != "" {
		pos, ok := ParsePosition(position)
		if !ok {
			return InvalidPosition
		}
		e.Position = pos
	}
	if name = strings.Join(strings.Fields(name), " "); name != "" {
		e.Name = name
	}
	if password != "" {
		if err := e.setPassword(password); err != nil {
			s.logger.Printf("employee: update %s: %v", username, err)
			return NotFound
		}
	}

	employees[idx] = e
	if err := s.save(ctx, employees); err != nil {
		s.logger.Printf("employee: update %s: %v", username, err)
		return NotFound
	}
	return Updated
}

// Authenticate checks the credentials and resolves the employee's role.
func (s *service) Authenticate(ctx context.Context, username, password string) (*Employee, Role) {
	if !s.rateLimiter.Allow() {
		s.logger.Printf("employee: login rate limit exceeded for %s", username)
		return nil, RoleNone
	}

	employees, err := s.load(ctx)
	if err != nil {
		s.logger.Printf("employee: authentication failed: %v", err)
		return nil, RoleNone
	}
	idx := indexOf(employees, username)
	if idx < 0 {
		return nil, RoleNone
	}
	e := employees[idx]
	ok, err := e.checkPassword(password)
	if err != nil {
		s.logger.Printf("employee: authentication failed for %s: %v", username, err)
		return nil, RoleNone
	}
	if !ok {
		return nil, RoleNone
	}
	return &e, e.Position.Role()
}

// LogIn authenticates and records the sign-in in the audit log.
func (s *service) LogIn(ctx context.Context, username, password string) (*Employee, Role) {
	e, role := s.Authenticate(ctx, username, password)
	if role == RoleNone {
		return nil, RoleNone
	}
	if err := s.audit(ctx, e, "logs into"); err != nil {
		s.logger.Printf("employee: %v", err)
	}
	return e, role
}

// LogOut records the sign-out in the audit log.
func (s *service) LogOut(ctx context.Context, e *Employee) error {
	if e == nil {
		return nil
	}
	return s.audit(ctx, e, "logs out of")
}

// Bootstrap creates the first administrator of an empty database.
func (s *service) Bootstrap(ctx context.Context, name, password string) (*Employee, error) {
	employees, err := s.load(ctx)
	if err != nil && !errors.Is(err, flatstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to read employees: %w", err)
	}
	if len(employees) > 0 {
		return nil, ErrAlreadySeeded
	}
	return s.Add(ctx, name, password, Admin)
}

func (s *service) audit(ctx context.Context, e *Employee, action string) error {
	line := fmt.Sprintf("%s (%s %s) %s POS System. Time: %s",
		e.Name, e.Username, e.Position, action, s.now().Format(auditLayout))
	if err := s.store.Append(ctx, s.auditPath, []string{line}); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *service) load(ctx context.Context) ([]Employee, error) {
	lines, err := s.store.Scan(ctx, s.path)
	if err != nil {
		return nil, err
	}
	employees := make([]Employee, 0, len(lines))
	for n, line := range lines {
		e, err := parseEmployee(line)
		if err != nil {
			s.logger.Printf("employee: skipping %s line %d: %v", s.path, n+1, err)
			continue
		}
		employees = append(employees, e)
	}
	return employees, nil
}

func (s *service) save(ctx context.Context, employees []Employee) error {
	lines := make([]string, len(employees))
	for i, e := range employees {
		lines[i] = e.record()
	}
	if err := s.store.Rewrite(ctx, s.path, lines); err != nil {
		return fmt.Errorf("failed to write employees: %w", err)
	}
	return nil
}

func indexOf(employees []Employee, username string) int {
	for i := range employees {
		if employees[i].Username == username {
			return i
		}
	}
	return -1
}

func nextUsername(employees []Employee) string {
	next := firstUsername
	for _, e := range employees {
		if n, err := strconv.Atoi(e.Username); err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.Itoa(next)
}
