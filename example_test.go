package cmdmessenger_test

import (
	"context"
	"fmt"
	"log"
	"time"

	cmdmessenger "github.com/pior/cmdmessenger"
	"github.com/pior/cmdmessenger/internal/testutils"
	"github.com/pior/cmdmessenger/wire"
)

const (
	cmdLog = iota
	cmdAck
	cmdAdd
)

// adder is a fake device answering cmdAdd with the sum of its arguments.
func adder(frame []byte) string {
	r, err := wire.NewReader(frame, wire.DefaultSeparators())
	if err != nil || r.ID() != cmdAdd {
		return ""
	}
	a, _ := r.ReadInt16()
	b, _ := r.ReadInt16()
	return fmt.Sprintf("%d,%d;", cmdAck, a+b)
}

// Example sends a command and waits for the device acknowledgment.
func Example() {
	// On real hardware: cmdmessenger.OpenSerial(cmdmessenger.SerialConfig{Port: "/dev/ttyUSB0"})
	device := testutils.NewTransportMock()
	device.ReadTimeout = 10 * time.Millisecond
	device.Respond(adder)

	m, err := cmdmessenger.New(device, cmdmessenger.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	l := cmdmessenger.NewListener(m, cmdAck)
	if err := l.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer l.Stop()

	reply, err := l.Request(context.Background(), cmdAdd, time.Second, func(w *wire.Writer) error {
		if err := w.WriteInt16(2); err != nil {
			return err
		}
		return w.WriteInt16(3)
	})
	if err != nil {
		log.Printf("Request failed: %v", err)
		return
	}

	sum, err := reply.ReadInt16()
	if err != nil {
		log.Printf("Bad reply: %v", err)
		return
	}
	fmt.Println("sum:", sum)
	// Output: sum: 5
}

// Example_handlers dispatches inbound frames by command id.
func Example_handlers() {
	device := testutils.NewTransportMock("0,booting/, please wait;", "0,ready;")

	m, err := cmdmessenger.New(device, cmdmessenger.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	m.Register(cmdLog, func(r *wire.Reader) error {
		text, err := r.ReadString()
		if err != nil {
			return err
		}
		fmt.Println("device:", text)
		return nil
	})

	for range 2 {
		if err := m.Pump(context.Background()); err != nil {
			log.Fatal(err)
		}
	}
	// Output:
	// device: booting, please wait
	// device: ready
}
