// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

// ErrUpstreamUnavailable wraps any failed page request against the upstream
// event store. Callers decide whether to abort (audit paths) or surface the
// failure to the reader (serving paths with no cached fallback).
var ErrUpstreamUnavailable = errors.New("upstream event store unavailable")
