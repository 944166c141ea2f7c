package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/spf13/cobra"
)

var inspectFile string

// NewInspectCmd produces a command that decodes a message and prints its
// summary as JSON.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [hex]",
		Short: "Decode a message",
		Long: `Decode a message given as a hex string, or read from a file with --file,
and print its header, hash and fields as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: inspect,
	}

	cmd.Flags().StringVarP(&inspectFile, "file", "f", "", "File containing the raw message bytes")

	return cmd
}

func inspect(cmd *cobra.Command, args []string) error {
	data, err := readMessageInput(args)
	if err != nil {
		return err
	}

	raw, err := messages.NewRawMessage(data)
	if err != nil {
		return err
	}

	summary, err := messages.Summarize(raw)
	if err != nil {
		return err
	}

	out, err := summary.Marshal()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func readMessageInput(args []string) ([]byte, error) {
	switch {
	case inspectFile != "":
		return ioutil.ReadFile(inspectFile)
	case len(args) == 1:
		return common.DecodeFromString(args[0])
	default:
		in, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return common.DecodeFromString(strings.TrimSpace(string(in)))
	}
}
