// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"shaderviz/internal/shared"
)

// HeaderSize is the fixed packet prefix: sequence, timestamp, count.
const HeaderSize = 4 + 8 + 2

// MaxValues is the most floats one packet can carry.
const MaxValues = math.MaxUint16

// UDPPublisher periodically snapshots a feature buffer, packs it into a
// defined binary format, and sends it over UDP using a UDPSender.
// It runs in a separate goroutine managed by Start and Stop methods.
type UDPPublisher struct {
	sender   *UDPSender     // The underlying UDP sender instance.
	features *shared.Floats // Buffer the audio loop publishes into.
	interval time.Duration  // The interval at which packets are sent.
	now      func() time.Time

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Monotonically increasing sequence number for packets.

	// Reused on every tick so the steady state does not allocate.
	values       []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, features *shared.Floats) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	if features == nil {
		return nil, errors.New("udp publisher: feature buffer cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		logger.Warnf("invalid interval, defaulting to %s", interval)
	}
	logger.Infof("publisher every %s", interval)
	return &UDPPublisher{
		sender:       sender,
		features:     features,
		interval:     interval,
		now:          time.Now,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals keep the goroutine off p.ticker and p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	logger.Infof("publisher stopped after %d packets", p.sequenceNum)
	return nil
}

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |     Value     |         Values          |
|      (uint32)     |   (int64, unix ns)    |     Count     |      (N * float32)      |
|                   |                       |    (uint16)   |                         |
+-------------------+-----------------------+---------------+-------------------------+

Values is the feature vector: one centroid, or the magnitude spectrum.
*/

// Packet is a decoded datagram.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Values    []float32
}

// WritePacket packs one datagram into buf. Values beyond MaxValues are
// dropped.
func WritePacket(buf *bytes.Buffer, seq uint32, timestamp int64, values []float32) error {
	if len(values) > MaxValues {
		values = values[:MaxValues]
	}
	buf.Reset()
	err := binary.Write(buf, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(values)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, values)
	}
	return err
}

// ParsePacket decodes a datagram written by WritePacket.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("packet of %d bytes is shorter than the header", len(data))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(data[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:12])),
	}
	n := int(binary.BigEndian.Uint16(data[12:14]))
	body := data[HeaderSize:]
	if len(body) != 4*n {
		return Packet{}, fmt.Errorf("packet declares %d values but carries %d bytes", n, len(body))
	}
	p.Values = make([]float32, n)
	for i := range p.Values {
		p.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
	}
	return p, nil
}

// buildAndSendPacket is executed on each ticker interval.
func (p *UDPPublisher) buildAndSendPacket() {
	p.values = shared.SnapshotInto(p.features, p.values)
	p.sequenceNum++
	if err := WritePacket(p.packetBuffer, p.sequenceNum, p.now().UnixNano(), p.values); err != nil {
		logger.Errorf("pack packet %d: %v", p.sequenceNum, err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		// The sender already logs at debug level.
		return
	}
	logger.Debugf("sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Close implements the io.Closer interface. It stops the publisher
// goroutine and then the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
