// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command leaktrace explains why a node of an object graph is still
// reachable.
//
// Graphs are described in YAML; anchors and aliases express shared and
// cyclic references. The tracer walks the graph from its root and prints
// every path that reaches a matching node.
//
// Usage:
//
//	leaktrace find heap.yaml --match-value 1234
//	leaktrace find heap.yaml --match-key listener --multiple --json
//	leaktrace compare heap.yaml --match-value 1234
//	leaktrace diff before.yaml after.yaml
//
// Exit status is 1 on any error, including a traversal that exceeds its
// depth ceiling.
package main

import (
	"os"

	"github.com/AleutianAI/leaktrace/pkg/ux"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ux.NewPrinter(os.Stdout, os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
