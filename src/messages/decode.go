package messages

// Decode validates raw against the schema of its type and returns the typed
// message: Connect, Status, Propose, Prevote, Precommit, Block or
// RequestBlock.
func Decode(raw RawMessage) (Message, error) {
	if raw.Class() != ClassConsensus {
		return nil, malformed("unknown message class %d", raw.Class())
	}

	switch raw.Type() {
	case TypeConnect:
		return DecodeConnect(raw)
	case TypeStatus:
		return DecodeStatus(raw)
	case TypePropose:
		return DecodePropose(raw)
	case TypePrevote:
		return DecodePrevote(raw)
	case TypePrecommit:
		return DecodePrecommit(raw)
	case TypeBlock:
		return DecodeBlock(raw)
	case TypeRequestBlock:
		return DecodeRequestBlock(raw)
	default:
		return nil, malformed("unknown consensus message type %d", raw.Type())
	}
}

// DecodeBytes wraps b with NewRawMessage and decodes it.
func DecodeBytes(b []byte) (Message, error) {
	raw, err := NewRawMessage(b)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
