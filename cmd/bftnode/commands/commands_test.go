package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	status, err := messages.NewStatus(3, 12, crypto.SHA256([]byte("last")), key)
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := NewInspectCmd()
	cmd.SetOutput(&out)
	cmd.SetArgs([]string{common.EncodeToString(status.Raw().Bytes())})
	require.NoError(t, cmd.Execute())

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))

	assert.Equal(t, "Status", summary["name"])
	assert.Equal(t, status.Raw().Hash().Hex(), summary["hash"])

	fields := summary["fields"].(map[string]interface{})
	assert.EqualValues(t, 3, fields["validator"])
	assert.EqualValues(t, 12, fields["height"])
}

func TestInspectRejectsGarbage(t *testing.T) {
	cmd := NewInspectCmd()
	cmd.SetOutput(&bytes.Buffer{})
	cmd.SetArgs([]string{"0x0102"})
	assert.Error(t, cmd.Execute())
}

func TestNewLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "node.log")

	logger := newLogger("info", logFile)
	assert.Equal(t, logrus.InfoLevel, logger.Level)

	logger.SetOutput(&bytes.Buffer{})
	logger.Info("hello file")
	logger.Debug("filtered")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.NotContains(t, string(data), "filtered")
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()
	pubFile := filepath.Join(dir, "out", "validator.pub")

	keygen := func(extra ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewKeygenCmd()
		cmd.SetOutput(&out)
		cmd.SetArgs(append([]string{"--datadir", dir, "--pub", pubFile}, extra...))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := keygen()
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "priv_key"))

	key, err := keys.NewSimpleKeyfile(filepath.Join(dir, "priv_key")).ReadKey()
	require.NoError(t, err)

	pub, err := os.ReadFile(pubFile)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKeyHex(&key.PublicKey), string(pub))

	// an existing key is kept unless forced
	_, err = keygen()
	assert.Error(t, err)
	same, err := keys.NewSimpleKeyfile(filepath.Join(dir, "priv_key")).ReadKey()
	require.NoError(t, err)
	assert.Equal(t, keys.PrivateKeyHex(key), keys.PrivateKeyHex(same))

	_, err = keygen("--force")
	require.NoError(t, err)
	replaced, err := keys.NewSimpleKeyfile(filepath.Join(dir, "priv_key")).ReadKey()
	require.NoError(t, err)
	assert.NotEqual(t, keys.PrivateKeyHex(key), keys.PrivateKeyHex(replaced))
}
