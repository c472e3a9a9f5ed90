// Package ptr has pointer-related utilities.
package ptr

// To returns a pointer to the given value.
func To[T any](v T) *T {
	return &v
}
