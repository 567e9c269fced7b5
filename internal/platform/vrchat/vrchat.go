/*
Package vrchat implements platform.Connector for VRChat over OSC
(avatar parameter control) on UDP. No OSC encoding library is grounded
anywhere in this module's retrieval pack, so encode/decode of the small
subset of the OSC 1.0 wire format this needs (an address pattern plus a
single float32 argument on send; inbound messages are matched on their
address only) is hand-rolled against stdlib net,
following the original implementation's use of UDP :9001 for inbound
`/avatar/change` notifications.
*/
package vrchat

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/platform"
)

const (
	oscListenAddr = "127.0.0.1:9001"
	oscSendAddr   = "127.0.0.1:9000"

	avatarChangeAddress = "/avatar/change"
)

// OscTrigger describes one avatar parameter toggle: set to on_value,
// hold for duration_seconds, then reset to off_value.
type OscTrigger struct {
	Parameter       string
	OnValue         float32
	OffValue        float32
	DurationSeconds float64
}

// Connector is a platform.Connector for one VRChat OSC endpoint.
type Connector struct {
	cred *model.PlatformCredential

	listenConn *net.UDPConn
	sendConn   *net.UDPConn
}

// New builds a platform.ConnectorFactory bound to cred, for registration
// under the "vrchat" key. VRChat OSC has no per-account auth of its own;
// cred is kept for symmetry with other platforms and future use.
func New(cred *model.PlatformCredential) platform.ConnectorFactory {
	return func(ctx context.Context) (platform.Connector, error) {
		return &Connector{cred: cred}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	listenAddr, err := net.ResolveUDPAddr("udp", oscListenAddr)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "vrchat: resolve listen addr")
	}
	listenConn, err := net.ListenUDP("udp", listenAddr)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "vrchat: listen osc")
	}
	c.listenConn = listenConn

	sendAddr, err := net.ResolveUDPAddr("udp", oscSendAddr)
	if err != nil {
		listenConn.Close()
		return errs.Wrap(errs.Platform, err, "vrchat: resolve send addr")
	}
	sendConn, err := net.DialUDP("udp", nil, sendAddr)
	if err != nil {
		listenConn.Close()
		return errs.Wrap(errs.Platform, err, "vrchat: dial osc send")
	}
	c.sendConn = sendConn
	return nil
}

func (c *Connector) Run(ctx context.Context, out chan<- event.BotEvent) error {
	go func() {
		<-ctx.Done()
		c.listenConn.SetReadDeadline(time.Now())
	}()

	buf := make([]byte, 4096)
	for {
		n, err := c.listenConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.Wrap(errs.Io, err, "vrchat: read osc packet")
		}

		addr, _, ok := decodeOscMessage(buf[:n])
		if !ok || addr != avatarChangeAddress {
			continue
		}

		msg := &event.SystemMessage{
			Text: "vrchat: avatar changed",
			At:   time.Now(),
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send transmits an OscTrigger's on_value immediately; this connector
// never sends the off_value reset after duration_seconds, and nothing in
// this module schedules one, keeping this connector a thin transport.
func (c *Connector) Send(ctx context.Context, channel, text string) error {
	// channel carries the OSC address (e.g. "/avatar/parameters/Foo");
	// text is the float value, already formatted by the caller.
	packet := encodeOscFloat(channel, text)
	_, err := c.sendConn.Write(packet)
	if err != nil {
		return errs.Wrap(errs.Io, err, "vrchat: send osc packet")
	}
	return nil
}

func (c *Connector) Close() error {
	if c.sendConn != nil {
		c.sendConn.Close()
	}
	if c.listenConn != nil {
		return c.listenConn.Close()
	}
	return nil
}

// encodeOscFloat builds a minimal OSC 1.0 message: address, ",f" type
// tag, and a big-endian float32 argument parsed from valueText.
func encodeOscFloat(address, valueText string) []byte {
	var value float32
	// best-effort parse; malformed input sends 0.0 rather than failing
	// the whole send, matching the "fire and forget" nature of OSC.
	if parsed, err := strconv.ParseFloat(valueText, 32); err == nil {
		value = float32(parsed)
	}

	var buf bytes.Buffer
	buf.Write(padOscString(address))
	buf.Write(padOscString(",f"))
	binary.Write(&buf, binary.BigEndian, value)
	return buf.Bytes()
}

// decodeOscMessage extracts the address pattern from a raw OSC message,
// ignoring its type tag and arguments (this connector only needs to
// recognize /avatar/change notifications, not their payload).
func decodeOscMessage(raw []byte) (address string, rest []byte, ok bool) {
	if len(raw) == 0 || raw[0] != '/' {
		return "", nil, false
	}
	end := bytes.IndexByte(raw, 0)
	if end < 0 {
		return "", nil, false
	}
	return string(raw[:end]), raw[oscPad(end):], true
}

func padOscString(s string) []byte {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func oscPad(n int) int {
	n++ // account for the null terminator
	for n%4 != 0 {
		n++
	}
	return n
}
