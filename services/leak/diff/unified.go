// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"bytes"
	"fmt"

	"github.com/AleutianAI/leaktrace/services/leak/path"
	godiff "github.com/sourcegraph/go-diff/diff"
)

// ContextLines is the number of unchanged keys shown around each change.
const ContextLines = 3

// Unified renders the result as a unified diff of the two sorted key
// lists, each key shown as a display path. A changed key appears as a
// removal followed by an addition. An empty result renders as "".
func (r *Result) Unified(origName, newName string) (string, error) {
	if r.Empty() {
		return "", nil
	}
	if origName == "" {
		origName = "before"
	}
	if newName == "" {
		newName = "after"
	}
	fd := &godiff.FileDiff{
		OrigName: origName,
		NewName:  newName,
		Hunks:    r.hunks(ContextLines),
	}
	out, err := godiff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("rendering unified diff: %w", err)
	}
	return string(out), nil
}

// hunks groups changed ops with up to ctx equal ops of context on each
// side, merging groups whose context would overlap.
func (r *Result) hunks(ctx int) []*godiff.Hunk {
	// origLine[i] and newLine[i] are the 0-based line numbers at which
	// op i starts in each key list.
	origLine := make([]int, len(r.ops)+1)
	newLine := make([]int, len(r.ops)+1)
	for i, o := range r.ops {
		origLine[i+1], newLine[i+1] = origLine[i], newLine[i]
		if o.kind != opInsert {
			origLine[i+1]++
		}
		if o.kind != opDelete {
			newLine[i+1]++
		}
	}

	var hunks []*godiff.Hunk
	for i := 0; i < len(r.ops); {
		if r.ops[i].kind == opEqual {
			i++
			continue
		}
		start := max(0, i-ctx)
		end := i
		for j := i; j < len(r.ops) && j <= end+2*ctx; j++ {
			if r.ops[j].kind != opEqual {
				end = j
			}
		}
		stop := min(len(r.ops), end+ctx+1)
		hunks = append(hunks, r.hunk(start, stop, origLine, newLine))
		i = stop
	}
	return hunks
}

func (r *Result) hunk(start, stop int, origLine, newLine []int) *godiff.Hunk {
	var body bytes.Buffer
	for _, o := range r.ops[start:stop] {
		line := path.Display(o.key)
		switch o.kind {
		case opEqual:
			body.WriteString(" " + line + "\n")
		case opDelete:
			body.WriteString("-" + line + "\n")
		case opInsert:
			body.WriteString("+" + line + "\n")
		case opChange:
			body.WriteString("-" + line + "\n")
			body.WriteString("+" + line + "\n")
		}
	}

	origLines := origLine[stop] - origLine[start]
	newLines := newLine[stop] - newLine[start]
	return &godiff.Hunk{
		OrigStartLine: startLine(origLine[start], origLines),
		OrigLines:     int32(origLines),
		NewStartLine:  startLine(newLine[start], newLines),
		NewLines:      int32(newLines),
		Body:          body.Bytes(),
	}
}

// startLine converts a 0-based offset to the 1-based start line of a
// hunk. An empty range starts at the line before it.
func startLine(offset, lines int) int32 {
	if lines == 0 {
		return int32(offset)
	}
	return int32(offset + 1)
}
