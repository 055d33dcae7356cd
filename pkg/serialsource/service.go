// Package serialsource reads process variables from a serial device that
// streams framed telegrams:
//
//	/<device identification>
//	<name>\t<value>
//	...
//	!<CRCX>
//
// where CRCX is the CRC16/ARC checksum, hex-encoded, of everything from the
// leading "/" through the "!" inclusive. Frames with a bad checksum are
// dropped.
package serialsource

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sigurn/crc16"
	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/types"
)

const connectPollDelay = 100 * time.Millisecond

func NewPortReader(device string, baudrate uint) *PortReader {
	return &PortReader{
		device:   device,
		baudrate: baudrate,
		latest:   make(map[types.PVName]types.Reading),
	}
}

// Start opens the port and launches the background frame reader.
func (p *PortReader) Start() error {
	options := serial.OpenOptions{
		PortName:        p.device,
		BaudRate:        p.baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	p.serialPort = port
	log.Infof("connected to serial port %s", p.device)

	go p.readLoop()
	return nil
}

func (p *PortReader) Stop() {
	p.stopSignal.Store(true)
	if p.serialPort != nil {
		p.serialPort.Close()
		log.Info("disconnected from serial port")
	}
}

// Source returns the ValueSource for one PV key carried in the frames.
func (p *PortReader) Source(name types.PVName) *KeySource {
	return &KeySource{reader: p, name: name}
}

func (p *PortReader) readLoop() {
	// Tolerance before we give up on the stream.
	consecutiveErrors := 0
	maxErrors := 10

	reader := bufio.NewReader(p.serialPort)
	for consecutiveErrors < maxErrors {
		if p.stopSignal.Load() {
			return
		}

		frame, err := readFrame(reader)
		if err != nil {
			if p.stopSignal.Load() {
				return
			}
			consecutiveErrors++
			log.Warnf("error reading frame (%d/%d): %v", consecutiveErrors, maxErrors, err)
			time.Sleep(time.Second)
			continue
		}

		if readings := ParseFrame(frame); readings != nil {
			p.store(readings)
			consecutiveErrors = 0
		}
	}
	log.Errorf("too many consecutive errors (%d), stopping serial reader", maxErrors)
}

func (p *PortReader) store(readings []types.Reading) {
	p.readingMutex.Lock()
	for _, r := range readings {
		p.latest[r.Name] = r
	}
	p.readingMutex.Unlock()
}

func (p *PortReader) lookup(name types.PVName) (types.Reading, bool) {
	p.readingMutex.RLock()
	defer p.readingMutex.RUnlock()
	r, ok := p.latest[name]
	return r, ok
}

// readFrame accumulates lines from "/" through the "!" trailer line.
func readFrame(reader *bufio.Reader) (string, error) {
	var buffer strings.Builder
	var inFrame bool

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}

		if strings.HasPrefix(line, "/") {
			// Start of frame
			buffer.Reset()
			buffer.WriteString(line)
			inFrame = true
		} else if inFrame {
			buffer.WriteString(line)
			if strings.HasPrefix(strings.TrimSpace(line), "!") {
				// End of frame
				return buffer.String(), nil
			}
		}
	}
}

// ValidateChecksum checks the CRC16/ARC trailer over data + "!".
func ValidateChecksum(frame string) bool {
	parts := strings.Split(frame, "!")
	if len(parts) != 2 || len(parts[1]) < 4 {
		return false
	}

	data := parts[0] + "!"
	givenCRC := parts[1][:4]

	table := crc16.MakeTable(crc16.CRC16_ARC)
	calcCRC := crc16.Checksum([]byte(data), table)
	calcCRCHex := fmt.Sprintf("%04X", calcCRC)

	return strings.ToUpper(givenCRC) == calcCRCHex
}

// ParseFrame turns a validated frame into readings, one per body line.
// Numeric values become numbers, everything else stays text. Returns nil
// when the checksum does not match.
func ParseFrame(frame string) []types.Reading {
	if !ValidateChecksum(frame) {
		log.Warn("invalid checksum, skipping frame")
		return nil
	}

	now := time.Now()
	var readings []types.Reading
	lines := strings.Split(frame, "\n")
	for i, line := range lines {
		if i == 0 || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		name, raw, found := strings.Cut(line, "\t")
		if !found || name == "" {
			continue
		}
		readings = append(readings, types.Reading{
			Name:      types.PVName(name),
			Value:     types.ParseValue(raw),
			Timestamp: now,
		})
	}
	return readings
}

// KeySource exposes one PV key of a shared PortReader as a ValueSource.
type KeySource struct {
	reader *PortReader
	name   types.PVName
}

func (s *KeySource) Name() types.PVName {
	return s.name
}

// Connect waits until the key has been observed at least once on the
// stream. The wait is unbounded; only ctx cancels it.
func (s *KeySource) Connect(ctx context.Context) error {
	for {
		if _, ok := s.reader.lookup(s.name); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectPollDelay):
		}
	}
}

func (s *KeySource) Read() (types.Reading, error) {
	r, ok := s.reader.lookup(s.name)
	if !ok {
		return types.Reading{}, fmt.Errorf("no reading received yet for %s", s.name)
	}
	return r, nil
}

// Close is a no-op; the shared port belongs to the PortReader.
func (s *KeySource) Close() error {
	return nil
}
