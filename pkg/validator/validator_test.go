package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRegister(t *testing.T) {
	t.Run("valid input passes", func(t *testing.T) {
		errs := ValidateRegister("alice@example.com", "alice", "Alice", "Sup3rSecret")
		assert.False(t, errs.HasErrors())
	})

	t.Run("bad email", func(t *testing.T) {
		errs := ValidateRegister("not-an-email", "alice", "Alice", "Sup3rSecret")
		assert.Contains(t, errs, "email")
	})

	t.Run("username charset", func(t *testing.T) {
		errs := ValidateRegister("alice@example.com", "al ice!", "Alice", "Sup3rSecret")
		assert.Contains(t, errs, "username")
	})

	t.Run("weak passwords are named precisely", func(t *testing.T) {
		errs := ValidateRegister("alice@example.com", "alice", "Alice", "short")
		assert.Equal(t, "Password must be at least 8 characters", errs["password"])

		errs = ValidateRegister("alice@example.com", "alice", "Alice", "alllowercase")
		assert.Contains(t, errs["password"], "one uppercase letter")
		assert.Contains(t, errs["password"], "one number")
	})
}

func TestValidateGroup(t *testing.T) {
	errs := ValidateGroup("Friday plans", []string{"a"})
	assert.False(t, errs.HasErrors())

	errs = ValidateGroup(strings.Repeat("x", 101), []string{"a"})
	assert.Contains(t, errs, "title")

	errs = ValidateGroup("ok", nil)
	assert.Contains(t, errs, "member_ids")

	errs = ValidateGroup("ok", make([]string, 201))
	assert.Contains(t, errs, "member_ids")
}

func TestValidateReport(t *testing.T) {
	errs := ValidateReport("user", []string{"spam"})
	assert.False(t, errs.HasErrors())

	errs = ValidateReport("planet", []string{"spam"})
	assert.Contains(t, errs, "target_type")

	errs = ValidateReport("message", []string{"  ", ""})
	assert.Contains(t, errs, "reasons")

	errs = ValidateReport("message", []string{"a", "b", "c", "d"})
	assert.Contains(t, errs, "reasons")
}

func TestValidatePIN(t *testing.T) {
	assert.False(t, ValidatePIN("123456").HasErrors())
	assert.Contains(t, ValidatePIN(""), "pin")
	assert.Contains(t, ValidatePIN("12345"), "pin")
	assert.Contains(t, ValidatePIN("12345a"), "pin")
}
