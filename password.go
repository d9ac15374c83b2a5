package accounts

import (
	"strings"
	"unicode"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordSymbols is the punctuation set accepted by the password policy.
const PasswordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

const (
	passwordMinLen = 10
	passwordMaxLen = 16
)

// Individual policy rule texts; the composite error joins every unmet one.
const (
	passwordRuleLength = "be 10-16 characters long"
	passwordRuleUpper  = "contain at least 1 capital letter"
	passwordRuleDigit  = "contain at least 1 number"
	passwordRuleSymbol = "contain at least 1 symbol"
)

// ValidatePassword enforces the account password policy. All unmet rules are
// reported in a single message so the user can fix everything in one pass.
func ValidatePassword(password string) error {
	var unmet []string

	// Length is counted in characters, not bytes, so multibyte passwords
	// are measured the way the user typed them.
	if n := utf8.RuneCountInString(password); n < passwordMinLen || n > passwordMaxLen {
		unmet = append(unmet, passwordRuleLength)
	}

	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasUpper {
		unmet = append(unmet, passwordRuleUpper)
	}
	if !hasDigit {
		unmet = append(unmet, passwordRuleDigit)
	}
	if !hasSymbol {
		unmet = append(unmet, passwordRuleSymbol)
	}

	if len(unmet) == 0 {
		return nil
	}

	return goerrors.New(
		"Password must "+strings.Join(unmet, ", "),
		goerrors.CategoryValidation,
	).WithTextCode(TextCodeWeakPassword).
		WithMetadata(map[string]any{"unmet_rules": unmet})
}

// ValidatePasswordConfirmation checks the confirm field; this never reaches
// the network.
func ValidatePasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return goerrors.New("Passwords do not match.", goerrors.CategoryValidation)
	}
	return nil
}
