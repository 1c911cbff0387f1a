// Package ir provides the value and record types shared by every ranklist package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types - column values are IRNull, IRString, IRInt, IRBool
//   - A Record carries its position separately from its other fields
//   - Canonical JSON is the only serialization used for golden snapshots
package ir
