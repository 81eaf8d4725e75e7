// Package output renders dzmesh-cli results.
//
//   - table: aligned columns; struct slices use their json tags as headers
//     and hide fields tagged `table:"wide"` unless wide mode is on
//   - json: indented JSON
//   - yaml: YAML keyed by the same json names
//
// @design DS-0601
package output
