package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"go.viam.com/spidev/spi"
)

// demo runs one batch against the handle and prints what was sent and received.
type demo func(h *spi.Handle, out io.Writer) error

var demos = map[string]demo{
	"strings": stringsDemo,
	"bytes":   bytesDemo,
	"struct":  structDemo,
}

var demoOrder = []string{"strings", "bytes", "struct"}

// stringsDemo sends four strings as one batch and reads back a generous 128 byte response.
func stringsDemo(h *spi.Handle, out io.Writer) error {
	messages := []string{"Hello World", "Hello World 2", "Hello World 3", "Hello World 4"}
	for _, msg := range messages {
		h.Enqueue([]byte(msg))
	}
	rx, err := h.Submit(128, true)
	if err != nil {
		return err
	}

	t := newTable(out, "strings")
	t.AppendHeader(table.Row{"#", "Sent", "Received"})
	offset := 0
	for i, msg := range messages {
		t.AppendRow(table.Row{i, msg, printable(rx[offset : offset+len(msg)])})
		offset += len(msg)
	}
	t.Render()
	return nil
}

// bytesDemo sends six single byte segments followed by one seven byte segment, asking for only
// the first six bytes back. The rest of the response stays in the returned slice's capacity.
func bytesDemo(h *spi.Handle, out io.Writer) error {
	payload := []byte{64, 65, 66, 67, 68, 69, 0}
	for i := 0; i < 6; i++ {
		h.Enqueue(payload[i : i+1])
	}
	h.Enqueue(payload)
	rx, err := h.Submit(6, true)
	if err != nil {
		return err
	}

	t := newTable(out, "bytes")
	t.AppendHeader(table.Row{"#", "Sent", "Received"})
	for i, b := range rx {
		t.AppendRow(table.Row{i, payload[i], b})
	}
	tail := rx[len(rx):cap(rx)]
	t.AppendSeparator()
	t.AppendRow(table.Row{"tail", printable(payload), printable(tail)})
	t.Render()
	return nil
}

// probe is sent and received as a packed little endian struct.
type probe struct {
	X, Y, Z int32
	Name    [32]byte
}

func structDemo(h *spi.Handle, out io.Writer) error {
	sent := probe{X: 10, Y: -5, Z: 20}
	copy(sent.Name[:], "cube")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, sent); err != nil {
		return errors.Wrap(err, "encoding probe")
	}
	h.Enqueue(buf.Bytes())
	rx, err := h.Submit(binary.Size(sent), true)
	if err != nil {
		return err
	}

	var received probe
	if err := binary.Read(bytes.NewReader(rx), binary.LittleEndian, &received); err != nil {
		return errors.Wrap(err, "decoding probe")
	}

	t := newTable(out, "struct")
	t.AppendHeader(table.Row{"Field", "Sent", "Received"})
	t.AppendRow(table.Row{"x", sent.X, received.X})
	t.AppendRow(table.Row{"y", sent.Y, received.Y})
	t.AppendRow(table.Row{"z", sent.Z, received.Z})
	t.AppendRow(table.Row{"name", cString(sent.Name[:]), cString(received.Name[:])})
	t.Render()
	return nil
}

func newTable(out io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	return t
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// printable quotes the bytes, escaping anything outside printable ASCII.
func printable(b []byte) string {
	return strings.Trim(fmt.Sprintf("%+q", b), `"`)
}
