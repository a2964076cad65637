package traci

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// packet accumulates the payload of a single TraCI command. The command is
// framed (length prefix + command ID) when the message is assembled.
type packet struct {
	buf bytes.Buffer
}

func (p *packet) writeByte(b byte) {
	p.buf.WriteByte(b)
}

func (p *packet) writeInt(v int32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], uint32(v))
	p.buf.Write(scratch[:])
}

func (p *packet) writeDouble(v float64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], math.Float64bits(v))
	p.buf.Write(scratch[:])
}

func (p *packet) writeString(s string) {
	p.writeInt(int32(len(s)))
	p.buf.WriteString(s)
}

func (p *packet) writeStringList(items []string) {
	p.writeInt(int32(len(items)))
	for _, s := range items {
		p.writeString(s)
	}
}

// frameCommand wraps a command payload with its length prefix and command
// identifier. Commands longer than 255 bytes use the extended framing (a
// zero byte followed by an int32 length).
func frameCommand(id byte, payload []byte) []byte {
	total := 2 + len(payload)
	if total <= math.MaxUint8 {
		out := make([]byte, 0, total)
		out = append(out, byte(total), id)
		return append(out, payload...)
	}
	total = 6 + len(payload)
	out := make([]byte, 0, total)
	out = append(out, 0)
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], uint32(total))
	out = append(out, scratch[:]...)
	out = append(out, id)
	return append(out, payload...)
}

// writeMessage sends one or more framed commands as a single TraCI message:
// a 4-byte big-endian total length (inclusive of itself) followed by the
// command bytes.
func writeMessage(w io.Writer, commands ...[]byte) error {
	var body bytes.Buffer
	for _, cmd := range commands {
		body.Write(cmd)
	}
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(4+body.Len()))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// readMessage reads one full TraCI message body (without the length prefix).
func readMessage(r io.Reader) ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(head[:])
	if total < 4 {
		return nil, fmt.Errorf("traci: malformed message length %d", total)
	}
	body := make([]byte, total-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// reader walks a received message body.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readInt() (int32, error) {
	if r.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *reader) readDouble() (float64, error) {
	if r.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readInt()
	if err != nil {
		return "", err
	}
	if n < 0 || r.remaining() < int(n) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) readStringList() ([]string, error) {
	n, err := r.readInt()
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

// readCommandHeader consumes a command length prefix (plain or extended) and
// the command identifier, returning the identifier and the payload length.
func (r *reader) readCommandHeader() (byte, int, error) {
	start := r.pos
	length, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	total := int(length)
	if length == 0 {
		ext, err := r.readInt()
		if err != nil {
			return 0, 0, err
		}
		total = int(ext)
	}
	id, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	payload := total - (r.pos - start)
	if payload < 0 || payload > r.remaining() {
		return 0, 0, fmt.Errorf("traci: malformed command length %d", total)
	}
	return id, payload, nil
}

// expectType consumes a value type byte and checks it against want.
func (r *reader) expectType(want byte) error {
	got, err := r.readByte()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("traci: unexpected value type 0x%02x (want 0x%02x)", got, want)
	}
	return nil
}
