// Package ptr includes functions for creating pointers from values.
package ptr

func String(x string) *string {
	return &x
}

func Bool(x bool) *bool {
	return &x
}
