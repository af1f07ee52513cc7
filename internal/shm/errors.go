// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shm

import "fmt"

func errTooMany(what string, got, max int) error {
	return fmt.Errorf("shm: too many %s (%d, max %d)", what, got, max)
}

func errBadRef(kind string, idx int, field string) error {
	return fmt.Errorf("shm: %s[%d] has an out-of-range %s reference", kind, idx, field)
}
