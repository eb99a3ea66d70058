// internal/register/employees.go
package register

import (
	"context"
	"strings"

	"retailpos/internal/employee"
)

const employeesHelp = `Commands:
  list
  add <Cashier|Admin> <password> <full name>
  delete <username>
  update <username> <position|-> <password|-> [full name]
  back
`

// manageEmployees is the admin-only employee prompt.
func (r *Register) manageEmployees(ctx context.Context) error {
	for {
		line, err := r.prompt(ctx, "employees> ")
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
		case "list":
			for _, e := range r.employees.List(ctx) {
				r.printf("  %s %s %s\n", e.Username, e.Position, e.Name)
			}
		case "add":
			r.addEmployee(ctx, args)
		case "delete":
			if len(args) != 1 {
				r.printf("usage: delete <username>\n")
			} else if r.employees.Delete(ctx, args[0]) {
				r.printf("Employee %s deleted.\n", args[0])
			} else {
				r.printf("Employee %s not found.\n", args[0])
			}
		case "update":
			r.updateEmployee(ctx, args)
		case "back":
			return nil
		default:
			r.printf("%s", employeesHelp)
		}
	}
}

func (r *Register) addEmployee(ctx context.Context, args []string) {
	if len(args) < 3 {
		r.printf("usage: add <Cashier|Admin> <password> <full name>\n")
		return
	}
	pos, ok := employee.ParsePosition(args[0])
	if !ok {
		r.printf("Unknown position %q.\n", args[0])
		return
	}
	e, err := r.employees.Add(ctx, strings.Join(args[2:], " "), args[1], pos)
	if err != nil {
		r.printf("Could not add employee: %v\n", err)
		return
	}
	r.printf("Employee %s added as %s.\n", e.Username, e.Position)
}

func (r *Register) updateEmployee(ctx context.Context, args []string) {
	if len(args) < 3 {
		r.printf("usage: update <username> <position|-> <password|-> [full name]\n")
		return
	}
	position, password := dash(args[1]), dash(args[2])
	name := strings.Join(args[3:], " ")

	switch r.employees.Update(ctx, args[0], password, position, name) {
	case employee.Updated:
		r.printf("Employee %s updated.\n", args[0])
	case employee.NotFound:
		r.printf("Employee %s not found.\n", args[0])
	case employee.InvalidPosition:
		r.printf("Unknown position %q.\n", position)
	}
}

// dash maps the "-" placeholder to an empty, unchanged field.
func dash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
