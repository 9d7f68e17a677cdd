// Package ir provides the shared value and record types for autocat.
//
// This package contains type definitions and canonical encoding only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - prices and timestamps are int64
//   - Strings are NFC normalized at every serialization boundary
//   - All JSON tags use snake_case
package ir
