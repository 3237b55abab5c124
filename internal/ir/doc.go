// Package ir provides the program-unit representation consumed and produced
// by the obscura transformation pipeline.
//
// This package contains type definitions, canonical serialization, and
// content-addressed identity only. All other internal packages import ir;
// ir imports nothing internal. This ensures IR remains the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - NO raw float values anywhere - floats are carried as IEEE-754 bit
//     patterns inside Word, so serialization is bit-exact and deterministic
//   - All JSON tags use snake_case
//   - Words serialize as hex strings, never JSON numbers (64-bit values do
//     not survive a float64 round-trip)
//   - Expression nodes form a sealed interface; JSON uses tagged objects
package ir
