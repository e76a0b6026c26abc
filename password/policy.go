package password

import (
	"fmt"
	"strings"
	"unicode"
)

// ViolationCode identifies a single failed complexity check.
type ViolationCode string

const (
	// ViolationTooShort is reported when the password is below MinLength.
	ViolationTooShort ViolationCode = "too_short"
	// ViolationTooLong is reported when the password exceeds MaxLength.
	ViolationTooLong ViolationCode = "too_long"
	// ViolationMissingUpper is reported when no uppercase letter is present.
	ViolationMissingUpper ViolationCode = "missing_uppercase"
	// ViolationMissingLower is reported when no lowercase letter is present.
	ViolationMissingLower ViolationCode = "missing_lowercase"
	// ViolationMissingDigit is reported when no digit is present.
	ViolationMissingDigit ViolationCode = "missing_digit"
	// ViolationMissingSpecial is reported when no configured special character is present.
	ViolationMissingSpecial ViolationCode = "missing_special"
	// ViolationDenylisted is reported for passwords on the configured denylist.
	ViolationDenylisted ViolationCode = "denylisted"
	// ViolationSequentialRun is reported for runs like "abcd" or "1234".
	ViolationSequentialRun ViolationCode = "sequential_run"
	// ViolationRepeatedRun is reported for runs like "aaaa".
	ViolationRepeatedRun ViolationCode = "repeated_run"
)

// Violation is one failed policy check with a human-readable message.
type Violation struct {
	Code    ViolationCode
	Message string
}

// PolicyConfig enumerates the independently togglable complexity checks.
//
// PolicyConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PolicyConfig struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	SpecialChars   string
	Denylist       []string
	// MaxSequentialRun rejects case-insensitive ascending runs of this
	// length or longer ("abc", "123"). 0 disables the check.
	MaxSequentialRun int
	// MaxRepeatRun rejects runs of the same character longer than this.
	// 0 disables the check.
	MaxRepeatRun int
}

// Policy validates candidate passwords against the configured checks.
type Policy struct {
	config   PolicyConfig
	denylist map[string]struct{}
}

// NewPolicy builds a Policy. The denylist is matched case-insensitively.
func NewPolicy(cfg PolicyConfig) *Policy {
	deny := make(map[string]struct{}, len(cfg.Denylist))
	for _, entry := range cfg.Denylist {
		deny[strings.ToLower(entry)] = struct{}{}
	}
	return &Policy{config: cfg, denylist: deny}
}

// Validate runs every enabled check and returns all violations. A nil result
// means the password passes the policy.
func (p *Policy) Validate(password string) []Violation {
	var violations []Violation
	add := func(code ViolationCode, format string, args ...any) {
		violations = append(violations, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	runes := []rune(password)
	if p.config.MinLength > 0 && len(runes) < p.config.MinLength {
		add(ViolationTooShort, "must be at least %d characters", p.config.MinLength)
	}
	if p.config.MaxLength > 0 && len(runes) > p.config.MaxLength {
		add(ViolationTooLong, "must be at most %d characters", p.config.MaxLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(p.config.SpecialChars, r) {
			hasSpecial = true
		}
	}
	if p.config.RequireUpper && !hasUpper {
		add(ViolationMissingUpper, "must contain an uppercase letter")
	}
	if p.config.RequireLower && !hasLower {
		add(ViolationMissingLower, "must contain a lowercase letter")
	}
	if p.config.RequireDigit && !hasDigit {
		add(ViolationMissingDigit, "must contain a digit")
	}
	if p.config.RequireSpecial && !hasSpecial {
		add(ViolationMissingSpecial, "must contain one of %q", p.config.SpecialChars)
	}

	if _, denied := p.denylist[strings.ToLower(password)]; denied {
		add(ViolationDenylisted, "is too common")
	}

	if p.config.MaxSequentialRun > 0 && longestSequentialRun(runes) >= p.config.MaxSequentialRun {
		add(ViolationSequentialRun, "must not contain %d or more sequential characters", p.config.MaxSequentialRun)
	}
	if p.config.MaxRepeatRun > 0 && longestRepeatRun(runes) > p.config.MaxRepeatRun {
		add(ViolationRepeatedRun, "must not repeat a character more than %d times in a row", p.config.MaxRepeatRun)
	}

	return violations
}

// longestSequentialRun finds the longest case-insensitive ascending run of
// consecutive letters or digits ("abc", "789").
func longestSequentialRun(runes []rune) int {
	longest, current := 0, 1
	var prev rune
	for i, r := range runes {
		r = unicode.ToLower(r)
		if i > 0 && isSequenceable(prev) && isSequenceable(r) && r == prev+1 {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
		prev = r
	}
	return longest
}

func isSequenceable(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func longestRepeatRun(runes []rune) int {
	longest, current := 0, 1
	for i := range runes {
		if i > 0 && runes[i] == runes[i-1] {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}
