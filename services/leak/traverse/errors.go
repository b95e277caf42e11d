// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package traverse

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/leaktrace/services/leak/path"
)

// Sentinel errors for traversal.
var (
	// ErrDepthExceeded is returned when a path grows past the depth
	// ceiling. It usually means the visited set failed to recognise a node
	// (for example because its representation changes on every call) or
	// the graph has a pathologically long chain.
	ErrDepthExceeded = errors.New("maximum traversal depth exceeded")

	// ErrNoRoot is returned when no root node is supplied.
	ErrNoRoot = errors.New("root node is required")

	// ErrNoChecker is returned when no checker is supplied.
	ErrNoChecker = errors.New("checker is required")

	// ErrCancelled is returned when the context is done before the
	// worklists drain. It wraps the context's error.
	ErrCancelled = errors.New("traversal cancelled")
)

// DepthError reports the path that crossed the depth ceiling.
type DepthError struct {
	// Path is the offending path.
	Path path.Path

	// Limit is the ceiling that was exceeded.
	Limit int
}

// Error implements error.
func (e *DepthError) Error() string {
	return fmt.Sprintf("%s: path length %d exceeds %d at %s", ErrDepthExceeded, len(e.Path), e.Limit, e.Path)
}

// Unwrap returns ErrDepthExceeded.
func (e *DepthError) Unwrap() error {
	return ErrDepthExceeded
}
