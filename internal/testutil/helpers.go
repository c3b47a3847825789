package testutil

import "strconv"

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
