package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMTPConn struct {
	pool   *fakeSMTPServer
	closed bool
}

func (c *fakeSMTPConn) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	return c.pool.accept(from, to, buf.String())
}

func (c *fakeSMTPConn) Close() error {
	c.closed = true
	c.pool.closes.Add(1)
	return nil
}

type fakeSMTPServer struct {
	mu       sync.Mutex
	dials    atomic.Int32
	closes   atomic.Int32
	open     atomic.Int32
	maxOpen  atomic.Int32
	dialErr  error
	sendErr  error
	delay    time.Duration
	envFrom  []string
	messages []string
}

func (s *fakeSMTPServer) dial() (mail.SendCloser, error) {
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	s.dials.Add(1)
	return &fakeSMTPConn{pool: s}, nil
}

func (s *fakeSMTPServer) accept(from string, to []string, raw string) error {
	n := s.open.Add(1)
	defer s.open.Add(-1)
	for {
		m := s.maxOpen.Load()
		if n <= m || s.maxOpen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.envFrom = append(s.envFrom, from)
	s.messages = append(s.messages, raw)
	return nil
}

func newTestSMTPGate(srv *fakeSMTPServer, maxConns, perConn int) *SMTPGate {
	return newSMTPGate(SMTPConfig{
		Host:                  "mail.acme.com",
		Port:                  587,
		Username:              "news@acme.com",
		Password:              "s3cret",
		FromAddress:           "news@acme.com",
		MaxConnections:        maxConns,
		MessagesPerConnection: perConn,
	}, srv.dial)
}

func TestSMTPGateVerifyKeepsConnection(t *testing.T) {
	srv := &fakeSMTPServer{}
	g := newTestSMTPGate(srv, 2, 10)

	require.NoError(t, g.Verify(context.Background()))
	_, err := g.Send(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, int32(1), srv.dials.Load(), "send reuses the verified session")
	require.NoError(t, g.Close())
	assert.Equal(t, int32(1), srv.closes.Load())
}

func TestSMTPGateVerifyFailure(t *testing.T) {
	srv := &fakeSMTPServer{dialErr: errors.New("535 5.7.8 authentication failed")}
	g := newTestSMTPGate(srv, 1, 1)

	err := g.Verify(context.Background())

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "mail.acme.com:587")
	assert.Contains(t, err.Error(), "news@acme.com")
	assert.NotContains(t, err.Error(), "s3cret")
}

func TestSMTPGateRecyclesAfterQuota(t *testing.T) {
	srv := &fakeSMTPServer{}
	g := newTestSMTPGate(srv, 1, 2)

	for i := 0; i < 5; i++ {
		_, err := g.Send(context.Background(), testMessage())
		require.NoError(t, err)
	}

	// 2 + 2 + 1 messages
	assert.Equal(t, int32(3), srv.dials.Load())
	assert.Equal(t, int32(2), srv.closes.Load())
	require.NoError(t, g.Close())
	assert.Equal(t, int32(3), srv.closes.Load())
}

func TestSMTPGateCapsConnections(t *testing.T) {
	srv := &fakeSMTPServer{delay: 10 * time.Millisecond}
	g := newTestSMTPGate(srv, 3, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Send(context.Background(), testMessage())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, srv.maxOpen.Load(), int32(3))
	assert.LessOrEqual(t, srv.dials.Load(), int32(3))
	assert.Len(t, srv.messages, 20)
}

func TestSMTPGateSendError(t *testing.T) {
	srv := &fakeSMTPServer{sendErr: &textproto.Error{Code: 450, Msg: "4.2.1 mailbox busy"}}
	g := newTestSMTPGate(srv, 1, 100)

	_, err := g.Send(context.Background(), testMessage())

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 450, se.ResponseCode())
	assert.Equal(t, "4.2.1 mailbox busy", se.Response)
	assert.Equal(t, int32(1), srv.closes.Load(), "failed session is discarded")
}

func TestSMTPGateEnvelopeAndBody(t *testing.T) {
	srv := &fakeSMTPServer{}
	g := newTestSMTPGate(srv, 1, 100)

	msg := testMessage()
	msg.EnvelopeFrom = ""
	receipt, err := g.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "<id-1@acme.com>", receipt.ID())
	assert.Equal(t, []string{"news@acme.com"}, srv.envFrom)
	assert.Contains(t, srv.messages[0], "Subject: Hi")
}

func TestSMTPGateClosed(t *testing.T) {
	g := newTestSMTPGate(&fakeSMTPServer{}, 1, 1)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err := g.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSMTPGateAcquireHonoursContext(t *testing.T) {
	srv := &fakeSMTPServer{}
	g := newTestSMTPGate(srv, 1, 100)
	g.slots <- struct{}{} // pool exhausted

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Send(ctx, testMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSMTPReplyCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&textproto.Error{Code: 421, Msg: "busy"}, 421},
		{errors.New("550 5.1.1 user unknown"), 550},
		{errors.New("gomail: could not send email 1: 452 4.3.1 insufficient storage"), 452},
		{errors.New("dial tcp 10.0.0.1:465: connect: connection refused"), 0},
		{errors.New("EOF"), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, smtpReplyCode(tt.err), tt.err.Error())
	}
}

func TestNewSMTPGateUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	g := NewSMTPGate(SMTPConfig{Host: "127.0.0.1", Port: port, Username: "u@acme.com", Password: "pw", Timeout: time.Second})
	defer g.Close()

	err = g.Verify(context.Background())
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, port, ce.Port)
	assert.NotContains(t, err.Error(), "pw")
}
