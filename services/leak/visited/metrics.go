// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package visited

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaktrace_visited_fallback_total",
		Help: "Nodes a marker strategy could not stamp and handed to its fallback set",
	}, []string{"strategy"})

	unknownReprTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaktrace_visited_unknown_repr_total",
		Help: "Nodes filed under the sentinel bucket because their representation failed",
	})
)
