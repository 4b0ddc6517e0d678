package journal

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored as protobuf wire format, hand-encoded so the
// schema lives next to the code that owns it:
//
//	1 instrument  bytes
//	2 seq         varint
//	3 buy_id      varint
//	4 sell_id     varint
//	5 price       zigzag varint
//	6 qty         zigzag varint
//	7 ts          zigzag varint
//	8 state       varint
//	9 retries     varint
const (
	fieldInstrument = 1
	fieldSeq        = 2
	fieldBuyID      = 3
	fieldSellID     = 4
	fieldPrice      = 5
	fieldQty        = 6
	fieldTs         = 7
	fieldState      = 8
	fieldRetries    = 9
)

func encodeRecord(r Record) []byte {
	b := make([]byte, 0, 64)
	b = protowire.AppendTag(b, fieldInstrument, protowire.BytesType)
	b = protowire.AppendString(b, r.Instrument)
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Seq)
	b = protowire.AppendTag(b, fieldBuyID, protowire.VarintType)
	b = protowire.AppendVarint(b, r.BuyID)
	b = protowire.AppendTag(b, fieldSellID, protowire.VarintType)
	b = protowire.AppendVarint(b, r.SellID)
	b = protowire.AppendTag(b, fieldPrice, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.Price))
	b = protowire.AppendTag(b, fieldQty, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.Qty))
	b = protowire.AppendTag(b, fieldTs, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.Ts))
	b = protowire.AppendTag(b, fieldState, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.State))
	b = protowire.AppendTag(b, fieldRetries, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Retries))
	return b
}

func decodeRecord(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, fmt.Errorf("journal: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldInstrument && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Record{}, fmt.Errorf("journal: bad instrument: %w", protowire.ParseError(n))
			}
			r.Instrument = v
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, fmt.Errorf("journal: bad varint: %w", protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldSeq:
				r.Seq = v
			case fieldBuyID:
				r.BuyID = v
			case fieldSellID:
				r.SellID = v
			case fieldPrice:
				r.Price = protowire.DecodeZigZag(v)
			case fieldQty:
				r.Qty = protowire.DecodeZigZag(v)
			case fieldTs:
				r.Ts = protowire.DecodeZigZag(v)
			case fieldState:
				r.State = State(v)
			case fieldRetries:
				r.Retries = uint32(v)
			}
		default:
			// Unknown field: skip to stay forward-compatible.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, fmt.Errorf("journal: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}
