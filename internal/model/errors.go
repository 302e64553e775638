package model

import "fmt"

func errRange(name string, lo, hi float64) error {
	return fmt.Errorf("model: %s out of range [%g, %g]", name, lo, hi)
}
