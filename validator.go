package rudder

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// FieldError is one validation violation: the field it concerns and a
// human-readable message. Messages never contain field values, so secrets
// cannot leak through error reporting.
type FieldError struct {
	Field   string
	Message string
}

// ValidationResult is the ordered list of violations for a candidate.
// An empty result means the candidate is valid.
type ValidationResult []FieldError

// Valid reports whether the candidate passed validation.
func (r ValidationResult) Valid() bool {
	return len(r) == 0
}

// Messages returns the violation messages in order.
func (r ValidationResult) Messages() []string {
	if len(r) == 0 {
		return nil
	}
	msgs := make([]string, len(r))
	for i, e := range r {
		msgs[i] = e.Message
	}
	return msgs
}

// Validate checks candidate values against the policy table and returns
// every violation. It never short-circuits: a candidate with k independent
// violations yields exactly k errors, in field order. Validate is a pure
// function with no side effects; errors are data, never control flow.
func Validate(values map[string]string, policies map[string]FieldPolicy) ValidationResult {
	var result ValidationResult

	keys := make([]string, 0, len(policies))
	for key := range policies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		policy := policies[key]
		raw, present := values[key]

		if !present || raw == "" {
			if policy.Required {
				result = append(result, FieldError{Field: key, Message: key + " is required"})
			}
			continue
		}

		// Secret-like fields are validated only for non-emptiness; their
		// contents are never inspected.
		if policy.Secret {
			continue
		}

		if err := checkField(key, raw, policy); err != nil {
			result = append(result, *err)
		}
	}

	return result
}

// checkField applies type coercion and constraint checks to one present,
// non-empty value. At most one violation is reported per field: a value
// that fails to parse is not additionally reported as out of range.
func checkField(key, raw string, policy FieldPolicy) *FieldError {
	switch policy.Type {
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &FieldError{Field: key, Message: key + " must be a number"}
		}
		if hasRange(policy) {
			tag := fmt.Sprintf("min=%v,max=%v", policy.Min, policy.Max)
			if err := validate.Var(f, tag); err != nil {
				return &FieldError{
					Field:   key,
					Message: fmt.Sprintf("%s must be between %.1f and %.1f", key, policy.Min, policy.Max),
				}
			}
		}

	case TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return &FieldError{Field: key, Message: key + " must be an integer"}
		}
		if hasRange(policy) {
			tag := fmt.Sprintf("min=%v,max=%v", policy.Min, policy.Max)
			if err := validate.Var(n, tag); err != nil {
				return &FieldError{
					Field:   key,
					Message: fmt.Sprintf("%s must be between %.0f and %.0f", key, policy.Min, policy.Max),
				}
			}
		}

	case TypeBool:
		if _, err := strconv.ParseBool(raw); err != nil {
			return &FieldError{Field: key, Message: key + " must be a boolean"}
		}

	case TypeList:
		if len(parseList(raw)) == 0 {
			return &FieldError{Field: key, Message: key + " must not be empty"}
		}

	case TypeString:
		if len(policy.Enum) > 0 {
			tag := "oneof=" + strings.Join(policy.Enum, " ")
			if err := validate.Var(raw, tag); err != nil {
				return &FieldError{
					Field:   key,
					Message: fmt.Sprintf("%s must be one of %s", key, strings.Join(policy.Enum, ", ")),
				}
			}
		}
		if len(policy.Schemes) > 0 {
			if !allowedScheme(raw, policy.Schemes) {
				return &FieldError{
					Field:   key,
					Message: fmt.Sprintf("%s must use one of the schemes %s", key, strings.Join(policy.Schemes, ", ")),
				}
			}
		}
	}

	return nil
}

// hasRange reports whether a policy declares numeric bounds.
func hasRange(policy FieldPolicy) bool {
	return policy.Min != 0 || policy.Max != 0
}

// allowedScheme reports whether a URL-shaped value uses an allow-listed scheme.
func allowedScheme(raw string, schemes []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
