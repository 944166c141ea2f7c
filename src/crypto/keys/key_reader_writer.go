package keys

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/mosaicnetworks/bftnode/src/common"
)

// DefaultKeyfile is the name of the private key file inside a data directory.
const DefaultKeyfile = "priv_key"

// KeyReaderWriter reads and writes ecdsa keys from/to any format or support.
type KeyReaderWriter interface {
	ReadKey() (*ecdsa.PrivateKey, error)
	WriteKey(*ecdsa.PrivateKey) error
}

// SimpleKeyfile stores the key as a raw hex dump of its D value in a file that
// only the owner may access.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// Path returns the location of the underlying file.
func (k *SimpleKeyfile) Path() string {
	return k.keyfile
}

// CheckFileInfo verifies that the file exists and that 'groups' and 'others'
// have no permissions on it.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()

	if perm&0077 != 0 {
		return fmt.Errorf("priv_key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey implements KeyReaderWriter.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	raw, err := common.DecodeFromString(string(buf))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(raw)
}

// WriteKey implements KeyReaderWriter. Parent directories are created with
// owner-only permissions.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, []byte(PrivateKeyHex(key)), 0600)
}

// ReadOrGenerate returns the key stored in the file, or generates and writes a
// new one if the file does not exist yet. The boolean is true when a new key
// was created.
func (k *SimpleKeyfile) ReadOrGenerate() (*ecdsa.PrivateKey, bool, error) {
	key, err := k.ReadKey()
	if err == nil {
		return key, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	key, err = GenerateECDSAKey()
	if err != nil {
		return nil, false, err
	}
	if err := k.WriteKey(key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}
