// This file is part of Gopher2600.
//
// Gopher2600 is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Gopher2600 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Gopher2600.  If not, see <https://www.gnu.org/licenses/>.

package curated

import (
	"errors"
	"fmt"
	"strings"
)

// categorized is the error type every category.* pattern (see the category
// package) is raised as. The name ties the type to its only real source of
// patterns in this repository, rather than the generic "curated" name a
// general-purpose error-wrapping helper would use.
type categorized struct {
	pattern string
	values  []interface{}
}

// Errorf builds a categorized error from one of category's pattern
// constants and the values it takes. Formatting is deferred to Error: only
// the pattern and values are stored here.
func Errorf(pattern string, values ...interface{}) error {
	return categorized{pattern: pattern, values: values}
}

// Error returns the normalised error message: when the first two message
// parts (separated by ": ") are identical they are collapsed into one; later
// parts are not compared. Implements the error interface.
func (e categorized) Error() string {
	s := fmt.Errorf(e.pattern, e.values...).Error()

	parts := strings.SplitN(s, ": ", 3)
	if len(parts) > 1 && parts[0] == parts[1] {
		return strings.Join(parts[1:], ": ")
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes whichever value passed to Errorf is itself an error, so
// the standard errors package (and Has, below) can see through a
// categorized error to what it wraps. Every call site in this repository
// passes at most one such value per category pattern.
func (e categorized) Unwrap() error {
	for _, v := range e.values {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

// IsAny reports whether err, or anything in its wrap chain, is a
// categorized error.
func IsAny(err error) bool {
	var e categorized
	return errors.As(err, &e)
}

// Is reports whether err is itself a categorized error raised under
// pattern. It does not look past err's own category: a categorized error
// wrapping another categorized error under a different pattern does not
// match here (use Has for that).
func Is(err error, pattern string) bool {
	e, ok := err.(categorized)
	return ok && e.pattern == pattern
}

// Has reports whether pattern occurs anywhere in err's categorized wrap
// chain.
func Has(err error, pattern string) bool {
	for {
		e, ok := err.(categorized)
		if !ok {
			return false
		}
		if e.pattern == pattern {
			return true
		}
		err = e.Unwrap()
	}
}
