package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

// serveEcho echoes every read back to the peer.
func serveEcho(ln net.Listener) {
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()
}

func testOptions(cmd, stream, reg int) Options {
	opts := DefaultOptions()
	opts.ConnectTimeout = time.Second
	opts.ReadTimeout = 200 * time.Millisecond
	opts.Ports = Ports{Command: cmd, Stream: stream, Register: reg, Discovery: 1}
	return opts
}

func TestTCPCommandAndLazyChannels(t *testing.T) {
	cmdLn, cmdPort := listen(t)
	streamLn, streamPort := listen(t)
	regLn, regPort := listen(t)
	serveEcho(cmdLn)
	serveEcho(streamLn)
	serveEcho(regLn)

	b, err := DialTCP(context.Background(), "127.0.0.1", testOptions(cmdPort, streamPort, regPort), nil)
	require.NoError(t, err)
	defer b.Close()

	assert.NotNil(t, b.conns[ChannelCommand], "command socket dialled at open")
	assert.Nil(t, b.conns[ChannelRegister], "register socket dialled on demand")

	for _, ch := range []Channel{ChannelCommand, ChannelStream, ChannelRegister} {
		_, err := b.Write(ch, []byte{0x70, 0x70})
		require.NoError(t, err, ch.String())
		got, err := b.Read(ch, 2)
		require.NoError(t, err, ch.String())
		assert.Equal(t, []byte{0x70, 0x70}, got, ch.String())
	}
	assert.Equal(t, KindTCP, b.Kind())
	assert.Equal(t, "127.0.0.1", b.Host())
}

func TestTCPDialFailure(t *testing.T) {
	ln, port := listen(t)
	ln.Close()

	_, err := DialTCP(context.Background(), "127.0.0.1", testOptions(port, port, port), nil)
	require.Error(t, err)
	assert.True(t, ljerrors.Is(err, ljerrors.ConnectionReset))
}

func TestTCPReadTimeout(t *testing.T) {
	ln, port := listen(t)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			time.Sleep(time.Second)
			c.Close()
		}
	}()

	b, err := DialTCP(context.Background(), "127.0.0.1", testOptions(port, port, port), nil)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Read(ChannelCommand, 4)
	assert.True(t, ljerrors.Is(err, ljerrors.Timeout), "got %v", err)
}

func TestTCPRegisterReconnectRecoverable(t *testing.T) {
	cmdLn, cmdPort := listen(t)
	serveEcho(cmdLn)
	regLn, regPort := listen(t)

	accepted := make(chan struct{}, 2)
	go func() {
		// First register connection is dropped at once; the second stays up.
		c, err := regLn.Accept()
		if err != nil {
			return
		}
		accepted <- struct{}{}
		c.Close()
		c2, err := regLn.Accept()
		if err != nil {
			return
		}
		accepted <- struct{}{}
		defer c2.Close()
		_, _ = io.Copy(c2, c2)
	}()

	b, err := DialTCP(context.Background(), "127.0.0.1", testOptions(cmdPort, cmdPort, regPort), nil)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Write(ChannelRegister, []byte{1, 2})
	require.NoError(t, err)
	<-accepted

	_, err = b.Read(ChannelRegister, 2)
	require.Error(t, err)
	var rec *Recoverable
	require.True(t, stderrors.As(err, &rec), "got %v", err)
	assert.Equal(t, RetryOnce, Classify(err))
	assert.True(t, ljerrors.Is(Original(err), ljerrors.ConnectionReset))

	<-accepted
	_, err = b.Write(ChannelRegister, []byte{3, 4})
	require.NoError(t, err)
	got, err := b.Read(ChannelRegister, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, got)
}

func TestTCPRegisterReconnectFailureReturnsOriginal(t *testing.T) {
	cmdLn, cmdPort := listen(t)
	serveEcho(cmdLn)
	regLn, regPort := listen(t)

	done := make(chan struct{})
	go func() {
		c, err := regLn.Accept()
		if err != nil {
			return
		}
		regLn.Close()
		c.Close()
		close(done)
	}()

	b, err := DialTCP(context.Background(), "127.0.0.1", testOptions(cmdPort, cmdPort, regPort), nil)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Write(ChannelRegister, []byte{1})
	require.NoError(t, err)
	<-done

	_, err = b.Read(ChannelRegister, 2)
	require.Error(t, err)
	var rec *Recoverable
	assert.False(t, stderrors.As(err, &rec))
	assert.Equal(t, Fatal, Classify(err))
	assert.True(t, ljerrors.Is(err, ljerrors.ConnectionReset))
}

func TestTCPCloseIdempotent(t *testing.T) {
	ln, port := listen(t)
	serveEcho(ln)
	b, err := DialTCP(context.Background(), "127.0.0.1", testOptions(port, port, port), nil)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err = b.Write(ChannelCommand, []byte{1})
	assert.Error(t, err)
}
