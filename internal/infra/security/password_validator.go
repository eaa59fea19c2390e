package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// RuleError describes a single password policy violation.
type RuleError struct {
	Code    string
	Message string
}

// Error implements error for RuleError.
func (e *RuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StrengthReport is the outcome of validating a candidate password.
// Score runs 0..5: one point per satisfied structural rule, minus one when the
// zxcvbn entropy estimate flags the password as guessable anyway.
type StrengthReport struct {
	IsValid bool
	Errors  []RuleError
	Score   int
}

const maxStrengthScore = 5

// PasswordValidator enforces the password strength policy.
type PasswordValidator struct {
	minLength int
}

// NewPasswordValidator constructs a validator with the supplied minimum length.
func NewPasswordValidator(minLength int) *PasswordValidator {
	if minLength <= 0 {
		minLength = 8
	}
	return &PasswordValidator{minLength: minLength}
}

// ValidateStrength applies every rule and returns the full report. Unlike a
// first-violation validator, callers get all violations at once so the UI can
// render actionable guidance.
func (v *PasswordValidator) ValidateStrength(password string) StrengthReport {
	var (
		hasUpper   bool
		hasLower   bool
		hasDigit   bool
		hasSpecial bool
	)

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			hasSpecial = true
		}
	}

	report := StrengthReport{Score: 0}
	fail := func(code, message string) {
		report.Errors = append(report.Errors, RuleError{Code: code, Message: message})
	}

	if len([]rune(password)) >= v.minLength {
		report.Score++
	} else {
		fail("min_length", fmt.Sprintf("password must be at least %d characters long", v.minLength))
	}
	if hasUpper {
		report.Score++
	} else {
		fail("uppercase", "password must include at least one uppercase letter")
	}
	if hasLower {
		report.Score++
	} else {
		fail("lowercase", "password must include at least one lowercase letter")
	}
	if hasDigit {
		report.Score++
	} else {
		fail("digit", "password must include at least one digit")
	}
	if hasSpecial {
		report.Score++
	} else {
		fail("special", "password must include at least one special character")
	}

	report.IsValid = len(report.Errors) == 0

	// A password can satisfy every structural rule and still be guessable
	// ("Password1!"). When the entropy estimate disagrees, dock a point so the
	// UI can show a weaker meter without rejecting the password.
	if report.IsValid {
		if entropy := zxcvbn.PasswordStrength(password, nil); entropy.Score < 3 && report.Score > 0 {
			report.Score--
		}
	}
	if report.Score > maxStrengthScore {
		report.Score = maxStrengthScore
	}

	return report
}
