package messages

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"net"
	"time"

	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

// Summary is a printable description of a message.
type Summary struct {
	Name      string                 `codec:"name" json:"name"`
	NetworkID uint8                  `codec:"network_id" json:"network_id"`
	Class     uint16                 `codec:"class" json:"class"`
	Type      uint16                 `codec:"type" json:"type"`
	Length    int                    `codec:"length" json:"length"`
	Hash      string                 `codec:"hash" json:"hash"`
	Fields    map[string]interface{} `codec:"fields,omitempty" json:"fields,omitempty"`
}

// Summarize describes raw. Messages of an unknown type only get their header
// described; messages failing their schema check return the check error.
func Summarize(raw RawMessage) (*Summary, error) {
	s := &Summary{
		Name:      "Unknown",
		NetworkID: raw.NetworkID(),
		Class:     raw.Class(),
		Type:      raw.Type(),
		Length:    raw.Len(),
		Hash:      raw.Hash().Hex(),
	}

	schema, ok := SchemaFor(raw.Class(), raw.Type())
	if !ok {
		return s, nil
	}

	values, err := schema.Decode(raw)
	if err != nil {
		return nil, err
	}

	s.Name = schema.Name
	s.Fields = make(map[string]interface{}, len(values))
	for i, v := range values {
		f, _, _ := schema.Layout.Field(i)
		s.Fields[f.Name] = summaryValue(v)
	}

	return s, nil
}

func summaryValue(v interface{}) interface{} {
	switch x := v.(type) {
	case crypto.Hash:
		return x.Hex()
	case []crypto.Hash:
		res := make([]string, len(x))
		for i, h := range x {
			res[i] = h.Hex()
		}
		return res
	case *ecdsa.PublicKey:
		return keys.PublicKeyHex(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *net.TCPAddr:
		return x.String()
	case []byte:
		return hex.EncodeToString(x)
	case [][]byte:
		res := make([]string, len(x))
		for i, b := range x {
			res[i] = hex.EncodeToString(b)
		}
		return res
	case BlockHeader:
		return map[string]interface{}{
			"height":     x.Height,
			"time":       x.Time.Format(time.RFC3339Nano),
			"prev_hash":  x.PrevHash.Hex(),
			"tx_hash":    x.TxHash.Hex(),
			"state_hash": x.StateHash.Hex(),
		}
	case RawMessage:
		return nestedSummary(x)
	case []RawMessage:
		res := make([]interface{}, len(x))
		for i, r := range x {
			res[i] = nestedSummary(r)
		}
		return res
	default:
		return v
	}
}

func nestedSummary(raw RawMessage) interface{} {
	s, err := Summarize(raw)
	if err != nil {
		return hex.EncodeToString(raw.Bytes())
	}
	return s
}

// Marshal encodes the summary as JSON with sorted keys.
func (s *Summary) Marshal() ([]byte, error) {
	var b bytes.Buffer

	jh := &codec.JsonHandle{}
	jh.Canonical = true

	enc := codec.NewEncoder(&b, jh)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
