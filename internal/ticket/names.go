package ticket

import "strings"

// FullName joins given name and surname the way they are stored and compared.
func FullName(given, surname string) string {
	return strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(surname))
}

// SanitizeInitials drops dots, collapses whitespace and upper-cases, so
// "a. l." and "A L" both become "A L" and "F." becomes "F".
func SanitizeInitials(initials string) string {
	cleaned := strings.ReplaceAll(initials, ".", "")
	return strings.ToUpper(strings.Join(strings.Fields(cleaned), " "))
}

// Field is one named free-text input.
type Field struct {
	Name  string
	Value string
}

// Require returns a *MissingFieldError for the first field that is empty
// after trimming.
func Require(fields ...Field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			return &MissingFieldError{Field: f.Name}
		}
	}
	return nil
}
