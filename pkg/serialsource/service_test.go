package serialsource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchlab/pvlogger/pkg/types"
)

// buildFrame assembles a telegram with a valid CRC16/ARC trailer.
func buildFrame(body string) string {
	data := "/SIM5 pvlogger test device\r\n" + body + "!"
	table := crc16.MakeTable(crc16.CRC16_ARC)
	return fmt.Sprintf("%s%04X\r\n", data, crc16.Checksum([]byte(data), table))
}

func TestValidateChecksum(t *testing.T) {
	frame := buildFrame("temp\t21.5\r\n")
	assert.True(t, ValidateChecksum(frame))

	// Flip one byte of the body.
	corrupt := "/SIM5 pvlogger test device\r\ntemp\t99.9\r\n" + frame[len(frame)-7:]
	assert.False(t, ValidateChecksum(corrupt))

	assert.False(t, ValidateChecksum("no trailer at all"))
	assert.False(t, ValidateChecksum("/x\r\n!AB"))
}

func TestParseFrame(t *testing.T) {
	frame := buildFrame("temp\t21.5\r\nuptime\t3 days, 4:05:11\r\n")

	readings := ParseFrame(frame)
	require.Len(t, readings, 2)

	assert.Equal(t, types.PVName("temp"), readings[0].Name)
	assert.Equal(t, types.Number(21.5), readings[0].Value)

	assert.Equal(t, types.PVName("uptime"), readings[1].Name)
	assert.Equal(t, types.Text("3 days, 4:05:11"), readings[1].Value)
	assert.False(t, readings[1].Timestamp.IsZero())
}

func TestParseFrameRejectsBadChecksum(t *testing.T) {
	frame := buildFrame("temp\t21.5\r\n")
	// Body tampered with after the checksum was computed.
	corrupt := "/SIM5 pvlogger test device\r\ntemp\t99.9\r\n" + frame[len(frame)-7:]
	assert.Nil(t, ParseFrame(corrupt))
}

func TestParseFrameSkipsMalformedLines(t *testing.T) {
	frame := buildFrame("temp\t21.5\r\nno-separator-here\r\n\r\n")
	readings := ParseFrame(frame)
	require.Len(t, readings, 1)
	assert.Equal(t, types.PVName("temp"), readings[0].Name)
}

func TestKeySourceReadsLatest(t *testing.T) {
	p := NewPortReader("/dev/null", 115200)
	p.store(ParseFrame(buildFrame("temp\t21.5\r\n")))

	src := p.Source("temp")
	assert.Equal(t, types.PVName("temp"), src.Name())

	require.NoError(t, src.Connect(context.Background()))
	r, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, types.Number(21.5), r.Value)

	// A later frame replaces the cached reading.
	p.store(ParseFrame(buildFrame("temp\t22\r\n")))
	r, err = src.Read()
	require.NoError(t, err)
	assert.Equal(t, types.Number(22), r.Value)
}

func TestKeySourceConnectWaitsForKey(t *testing.T) {
	p := NewPortReader("/dev/null", 115200)
	src := p.Source("late")

	_, err := src.Read()
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Connect(ctx)
	}()

	select {
	case <-done:
		t.Fatal("Connect returned before the key was observed")
	case <-time.After(50 * time.Millisecond):
	}

	p.store(ParseFrame(buildFrame("late\t1\r\n")))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Connect did not observe the key")
	}
	cancel()
}

func TestKeySourceConnectIsCancellable(t *testing.T) {
	p := NewPortReader("/dev/null", 115200)
	src := p.Source("never")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Connect(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Connect did not observe cancellation")
	}
}
