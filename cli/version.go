package cli

import (
	"fmt"

	actx "github.com/chutils/chutils/app/context"
)

// Version outputs the application version.
type Version struct{}

// Run the version command.
func (c *Version) Run(appCtx *actx.Context) error {
	fmt.Fprintf(appCtx.Stdout, "chutils %s\n", appCtx.Version)
	return nil
}
