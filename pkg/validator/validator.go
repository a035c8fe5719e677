package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// All returns the first non-nil error.
func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

// Collect returns every non-nil error combined into one, or nil.
func Collect(errors ...error) error {
	var result *multierror.Error
	for _, err := range errors {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type Validatable interface {
	Validate() error
}

func Each[T Validatable](items []T) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// EachCollect validates every item and reports all failures.
func EachCollect[T Validatable](items []T, description string) error {
	var errs []error
	for i, item := range items {
		if err := item.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", description, i, err))
		}
	}
	return Collect(errs...)
}

func Map[T any](items []T, f func(T, string) error, description string) error {
	for i, item := range items {
		if err := f(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

// ExactlyOne checks that exactly one of the named fields is set.
func ExactlyOne(description string, fields map[string]string) error {
	var set []string
	for name, v := range fields {
		if v != "" {
			set = append(set, name)
		}
	}
	slices.Sort(set)
	switch len(set) {
	case 1:
		return nil
	case 0:
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		slices.Sort(names)
		return fmt.Errorf("%s must set one of %s", description, strings.Join(names, ", "))
	default:
		return fmt.Errorf("%s sets more than one of %s", description, strings.Join(set, ", "))
	}
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

func NotNegative(n int, description string) error {
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", description, n)
	}
	return nil
}

// HasNoMarkup rejects values containing template delimiters.
func HasNoMarkup(field string, description string) error {
	if field != "" && (strings.Contains(field, "{{") || strings.Contains(field, "{@")) {
		return fmt.Errorf("%s must not contain template markup", description)
	}
	return nil
}
