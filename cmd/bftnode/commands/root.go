package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for bftnode
var RootCmd = &cobra.Command{
	Use:              "bftnode",
	Short:            "BFT validator node",
	TraverseChildren: true,
}
