package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"
)

const jsonPeerSetPath = "peers.json"

// JSONPeerSet is used to provide peer persistence on disk in the form of a JSON
// file. This allows human operators to manipulate the file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a new JSONPeerSet with reference to a base directory
// where the peers.json file resides.
func NewJSONPeerSet(base string) *JSONPeerSet {
	return &JSONPeerSet{
		path: filepath.Join(base, jsonPeerSetPath),
	}
}

// Path returns the location of the JSON file.
func (j *JSONPeerSet) Path() string {
	return j.path
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet. An empty file yields an empty PeerSet.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	var peers []*Peer
	if len(bytes.TrimSpace(buf)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(buf))
		if err := dec.Decode(&peers); err != nil {
			return nil, err
		}
	}

	return NewPeerSet(peers)
}

// Write persists a list of peers to the JSON file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := json.MarshalIndent(peers, "", "\t")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf, 0644)
}
