package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mosaicnetworks/bftnode/src/config"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/spf13/cobra"
)

// keygenOptions locates the files written by keygen. Empty paths resolve
// inside the data directory.
type keygenOptions struct {
	dataDir string
	priv    string
	pub     string
	force   bool
}

func (o *keygenOptions) privPath() string {
	if o.priv != "" {
		return o.priv
	}
	return filepath.Join(o.dataDir, config.DefaultKeyfile)
}

func (o *keygenOptions) pubPath() string {
	if o.pub != "" {
		return o.pub
	}
	return filepath.Join(o.dataDir, "key.pub")
}

// NewKeygenCmd returns the command that creates the key pair of a validator:
// the hex private key read by run, and the hex public key to list in
// peers.json.
func NewKeygenCmd() *cobra.Command {
	opts := &keygenOptions{dataDir: _config.Node.DataDir}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the key pair of a validator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeKeyPair(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "datadir", opts.dataDir, "Directory receiving the keys when --priv or --pub are not set")
	cmd.Flags().StringVar(&opts.priv, "priv", "", "Private key file (default <datadir>/"+config.DefaultKeyfile+")")
	cmd.Flags().StringVar(&opts.pub, "pub", "", "Public key file (default <datadir>/key.pub)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Replace an existing private key")

	return cmd
}

func writeKeyPair(opts *keygenOptions, out io.Writer) error {
	privPath, pubPath := opts.privPath(), opts.pubPath()

	_, err := os.Stat(privPath)
	switch {
	case err == nil && !opts.force:
		return fmt.Errorf("%s already exists, use --force to replace it", privPath)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return err
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if err := keys.NewSimpleKeyfile(privPath).WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(pubPath), 0700); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	pub := keys.PublicKeyHex(&key.PublicKey)
	if err := os.WriteFile(pubPath, []byte(pub), 0600); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	fmt.Fprintf(out, "Private key: %s\n", privPath)
	fmt.Fprintf(out, "Public key:  %s (%s)\n", pubPath, pub)

	return nil
}
