package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/hoppermq/streamly-console/internal/business"
	"github.com/hoppermq/streamly-console/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Streamly console server",
		"Streamly console server signs users in against the identity provider, renews their sessions and serves the console views and API.",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
