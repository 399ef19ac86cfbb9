package roles

import (
	"context"
	"errors"
	"fmt"
)

// InitializeBuiltInRoles seeds the built-in roles. Existing roles are left
// untouched.
func InitializeBuiltInRoles(ctx context.Context, store *Store) error {
	builtIn := []Role{
		{
			Name:        "admin",
			Label:       "Administrator",
			Description: "Full access to all objects, records, and settings",
			Permissions: map[string][]string{"*": {"*"}},
			IsBuiltIn:   true,
		},
		{
			Name:        "manager",
			Label:       "Manager",
			Description: "Manage records and sharing across the team",
			Permissions: map[string][]string{
				"lead":        {"read", "write", "delete"},
				"contact":     {"read", "write", "delete"},
				"account":     {"read", "write", "delete"},
				"opportunity": {"read", "write", "delete"},
				"activity":    {"read", "write", "delete"},
			},
			IsBuiltIn: true,
		},
		{
			Name:        "sales_rep",
			Label:       "Sales Representative",
			Description: "Work own leads, contacts, and opportunities",
			Permissions: map[string][]string{
				"lead":        {"read", "write"},
				"contact":     {"read", "write"},
				"account":     {"read"},
				"opportunity": {"read", "write"},
				"activity":    {"read", "write"},
			},
			IsBuiltIn: true,
		},
		{
			Name:        "assistant",
			Label:       "Assistant",
			Description: "Read access for scheduling and coordination",
			Permissions: map[string][]string{
				"lead":     {"read"},
				"contact":  {"read"},
				"account":  {"read"},
				"activity": {"read", "write"},
			},
			IsBuiltIn: true,
		},
	}

	for i := range builtIn {
		existing, err := store.GetRoleByName(ctx, builtIn[i].Name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check role %s: %w", builtIn[i].Name, err)
		}
		if existing != nil {
			continue
		}
		if err := store.CreateRole(ctx, &builtIn[i]); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", builtIn[i].Name, err)
		}
	}

	return nil
}
