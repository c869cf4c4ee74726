// Package all registers every shell command provider.
package all

import (
	_ "github.com/robotalks/disconnect/pkg/cli/cmds/pages"
	_ "github.com/robotalks/disconnect/pkg/cli/cmds/samples"
)
