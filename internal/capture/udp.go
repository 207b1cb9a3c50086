package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/skypro1111/utterance-capture/internal/audio"
)

const maxDatagramSize = 65507

// UDPConfig contains UDP source configuration
type UDPConfig struct {
	Address     string
	ReadTimeout time.Duration
	BufferSize  int // socket receive buffer; 0 keeps the OS default
}

// UDPOpener binds a UDP socket per session. Every datagram carries one block
// of little-endian PCM.
type UDPOpener struct {
	Config UDPConfig
	Logger *slog.Logger
}

// Open binds the configured address
func (o UDPOpener) Open(format audio.Format) (Source, error) {
	addr, err := net.ResolveUDPAddr("udp", o.Config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	return newUDPSource(conn, o.Config, o.Logger), nil
}

// UDPSource reads PCM datagrams from a bound socket
type UDPSource struct {
	conn        *net.UDPConn
	readTimeout time.Duration
	logger      *slog.Logger

	buffer []byte
	block  audio.SampleBlock

	datagrams uint64
	closed    atomic.Bool
}

func newUDPSource(conn *net.UDPConn, cfg UDPConfig, logger *slog.Logger) *UDPSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}

	if cfg.BufferSize > 0 {
		if err := conn.SetReadBuffer(cfg.BufferSize); err != nil {
			logger.Warn("Failed to set UDP read buffer size",
				slog.Int("buffer_size", cfg.BufferSize),
				slog.String("error", err.Error()),
			)
		}
	}

	logger.Info("UDP source listening",
		slog.String("address", conn.LocalAddr().String()),
		slog.Duration("read_timeout", cfg.ReadTimeout),
	)

	return &UDPSource{
		conn:        conn,
		readTimeout: cfg.ReadTimeout,
		logger:      logger,
		buffer:      make([]byte, maxDatagramSize),
	}
}

// LocalAddr returns the bound address
func (s *UDPSource) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Read waits up to the read timeout for one datagram
func (s *UDPSource) Read() (audio.SampleBlock, error) {
	if s.closed.Load() {
		return nil, ErrSourceClosed
	}

	// Set read deadline so the caller can check for stop periodically
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrSourceClosed
		}
		return nil, Transient(fmt.Errorf("failed to set read deadline: %w", err))
	}

	n, remoteAddr, err := s.conn.ReadFromUDP(s.buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) || s.closed.Load() {
			return nil, ErrSourceClosed
		}
		return nil, Transient(fmt.Errorf("failed to read UDP datagram: %w", err))
	}

	s.datagrams++

	if n%2 != 0 {
		return nil, Transient(fmt.Errorf("datagram from %s has odd length %d", remoteAddr, n))
	}

	s.block = decodePCM16LE(s.block, s.buffer[:n])
	return s.block, nil
}

// Datagrams returns the number of datagrams received. Call it from the
// reading goroutine.
func (s *UDPSource) Datagrams() uint64 {
	return s.datagrams
}

// Close closes the socket and unblocks a pending Read
func (s *UDPSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
