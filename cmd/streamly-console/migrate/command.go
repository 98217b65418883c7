package migrate

import (
	"github.com/spf13/cobra"

	"github.com/hoppermq/streamly-console/internal/business"
	"github.com/hoppermq/streamly-console/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Streamly console migrations",
		"Applies the preferences schema migrations and exits.",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
