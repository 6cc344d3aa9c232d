package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
var pinRegex = regexp.MustCompile(`^[0-9]{6}$`)

func ValidateRegister(email, username, displayName, password string) ValidationErrors {
	errs := make(ValidationErrors)

	// Email
	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	// Username
	username = strings.TrimSpace(username)
	if username == "" {
		errs.Add("username", "Username is required")
	} else if len(username) < 3 {
		errs.Add("username", "Username must be at least 3 characters")
	} else if len(username) > 50 {
		errs.Add("username", "Username is too long")
	} else if !usernameRegex.MatchString(username) {
		errs.Add("username", "Username can only contain letters, numbers, _ and -")
	}

	// Display name
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		errs.Add("display_name", "Display name is required")
	} else if len(displayName) < 2 {
		errs.Add("display_name", "Display name must be at least 2 characters")
	} else if len(displayName) > 100 {
		errs.Add("display_name", "Display name is too long")
	}

	// Password
	validatePassword(password, errs)

	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	errs := make(ValidationErrors)

	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}

func ValidateGroup(title string, memberIDs []string) ValidationErrors {
	errs := make(ValidationErrors)

	title = strings.TrimSpace(title)
	if len(title) > 100 {
		errs.Add("title", "Group title is too long")
	}

	if len(memberIDs) == 0 {
		errs.Add("member_ids", "A group needs at least one other member")
	} else if len(memberIDs) > 200 {
		errs.Add("member_ids", "Too many members")
	}

	return errs
}

func ValidateReport(targetType string, reasons []string) ValidationErrors {
	errs := make(ValidationErrors)

	switch targetType {
	case "user", "conversation", "message", "note":
	default:
		errs.Add("target_type", "Target type must be user, conversation, message, or note")
	}

	nonEmpty := 0
	for _, r := range reasons {
		if strings.TrimSpace(r) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		errs.Add("reasons", "At least one reason is required")
	} else if nonEmpty > 3 {
		errs.Add("reasons", "At most three reasons are allowed")
	}

	return errs
}

func ValidatePIN(pin string) ValidationErrors {
	errs := make(ValidationErrors)

	if pin == "" {
		errs.Add("pin", "PIN is required")
	} else if !pinRegex.MatchString(pin) {
		errs.Add("pin", "PIN must be exactly 6 digits")
	}

	return errs
}

func validatePassword(password string, errs ValidationErrors) {
	if len(password) < 8 {
		errs.Add("password", "Password must be at least 8 characters")
		return
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	missing := []string{}
	if !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "one number")
	}

	if len(missing) > 0 {
		errs.Add("password", fmt.Sprintf("Password must contain at least %s", strings.Join(missing, ", ")))
	}
}
