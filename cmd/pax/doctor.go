package main

import (
	"context"
	"fmt"

	"github.com/oreonproject/pax/internal/doctor"
)

// Doctor reports which host tools required by the installer and ISO
// builder are missing (spec.md §6 `doctor`, §9.1).
func Doctor(ctx context.Context, c *commonConfig, args []string) error {
	r := doctor.Check()
	if r.OK() {
		fmt.Println("all required tools found")
		return nil
	}
	fmt.Println(r.String())
	return fmt.Errorf("doctor: missing %d required tool(s)", len(r.Missing))
}
