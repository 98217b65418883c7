package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/hoppermq/streamly-console/internal/business"
	"github.com/hoppermq/streamly-console/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Streamly console housekeeping job",
		"Streamly console housekeeping job removes the expired sessions and login states.",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
