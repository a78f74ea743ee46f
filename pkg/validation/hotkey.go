// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for user-supplied
// query values.
//
// This package contains validators for inputs that end up in upstream query
// parameters. Validating at the API boundary keeps malformed identifiers out
// of upstream queries and gives callers a clear 400 instead of an empty
// result set.
package validation

import (
	"fmt"
	"regexp"
	"time"
)

// hotkeyPattern matches base58-encoded account identifiers. The base58
// alphabet excludes 0, O, I, and l. Full addresses are 46-48 characters,
// but prefixes are accepted so operators can paste partial keys.
var hotkeyPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{1,64}$`)

// ValidateHotkey validates a hotkey identifier.
//
// Valid hotkeys:
//   - 1-64 characters
//   - base58 alphabet only (no 0, O, I, l)
//
// Returns an error if the hotkey is invalid.
//
// Example:
//
//	if err := validation.ValidateHotkey(hotkey); err != nil {
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	    return
//	}
func ValidateHotkey(hotkey string) error {
	if hotkey == "" {
		return fmt.Errorf("hotkey cannot be empty")
	}
	if !hotkeyPattern.MatchString(hotkey) {
		return fmt.Errorf("invalid hotkey format: %q (must be 1-64 base58 characters)", hotkey)
	}
	return nil
}

// ValidateDate validates a calendar date in YYYY-MM-DD form.
//
// Returns an error if the value does not parse as a real date.
func ValidateDate(date string) error {
	if date == "" {
		return fmt.Errorf("date cannot be empty")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q: must be YYYY-MM-DD", date)
	}
	return nil
}
