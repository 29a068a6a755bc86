package main

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pior/cmdmessenger/lighthub"
)

// console serializes output from the shell and from hub events, which are
// printed on the listener goroutine.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ lighthub.EventHandler = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c, format, args...)
}

func (c *console) HandleDebug(ev lighthub.DebugMessage) {
	c.printf("hub: %s\n", ev.Text)
}

func (c *console) HandleTouch(ev lighthub.TouchEvent) {
	c.printf("[%d] gesture: %s, electrode: %s, repeat: %d\n", ev.Node, ev.Gesture, ev.Electrode, ev.Repeat)
}

func (c *console) HandleStatus(ev lighthub.StatusEvent) {
	c.printf("[%d] status: vcc %d, count %d\n", ev.Node, ev.Vcc, ev.Count)
}

// HandleSettingsDump prints the whole dump in one write so that it is not
// interleaved with shell output.
func (c *console) HandleSettingsDump(ev lighthub.SettingsDump) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%d] Dump settings:\n", ev.Node)
	for _, row := range ev.Hex() {
		fmt.Fprintln(&buf, row)
	}
	fmt.Fprintf(&buf, "fingerprint: %016x\n", ev.Fingerprint())
	c.Write(buf.Bytes())
}

func (c *console) HandleI2CRegister(ev lighthub.I2CRegister) {
	c.printf("[%d] i2c 0x%02x, register 0x%02x : 0x%02x\n", ev.Node, ev.Address, ev.Register, ev.Value)
}
