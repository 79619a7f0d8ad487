// Package ir provides the canonical value types and build model for graphres.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Content-addressed keys are computed from RFC 8785 canonical JSON only
//   - All JSON tags use snake_case
//   - FileSet order is significant and survives persistence unchanged
package ir
