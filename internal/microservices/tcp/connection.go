package tcp

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// readChunkSize is how much is read from the peer per call. Messages are
// short FUDI lines so a small buffer is enough; framing copes with splits.
const readChunkSize = 1024

// chunk is raw data read from a peer, tagged so stale reads from a
// replaced peer can be ignored by the loop
type chunk struct {
	peerID string
	data   []byte
}

// PeerConnection is the single inbound Pure-Data connection
type PeerConnection struct {
	ID          string // unique per accepted connection
	RemoteAddr  net.Addr
	ConnectedAt time.Time
	conn        net.Conn
	logger      *slog.Logger
}

// constructor for PeerConnection
func NewPeerConnection(conn net.Conn, logger *slog.Logger) *PeerConnection {
	return &PeerConnection{
		ID:          uuid.NewString(),
		RemoteAddr:  conn.RemoteAddr(),
		ConnectedAt: time.Now(),
		conn:        conn,
		logger:      logger,
	}
}

// Host returns the peer IP, used to dial the callback connection
func (p *PeerConnection) Host() string {
	if tcpAddr, ok := p.RemoteAddr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(p.RemoteAddr.String())
	if err != nil {
		return p.RemoteAddr.String()
	}
	return host
}

// listen reads until the connection ends, forwarding chunks to out. The
// peer ID is sent on closed when reading stops. done aborts both sends.
func (p *PeerConnection) listen(out chan<- chunk, closed chan<- string, done <-chan struct{}) {
	p.logger.Info("peer_started_listening",
		"peer_id", p.ID,
		"remote_addr", p.RemoteAddr.String(),
	)
	buf := make([]byte, readChunkSize)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case out <- chunk{peerID: p.ID, data: data}:
			case <-done:
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("peer_disconnected", "peer_id", p.ID)
			} else if !isClosedConnError(err) {
				p.logger.Warn("peer_read_error",
					"peer_id", p.ID,
					"error", err.Error(),
				)
			}
			select {
			case closed <- p.ID:
			case <-done:
			}
			return
		}
	}
}

func (p *PeerConnection) Close() error {
	return p.conn.Close()
}

// isClosedConnError reports errors expected when a socket is closed locally.
// On Windows these surface as "connection was aborted" or "forcibly closed".
func isClosedConnError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "closed network connection") ||
		strings.Contains(msg, "connection was aborted") ||
		strings.Contains(msg, "forcibly closed") ||
		strings.Contains(msg, "connection reset by peer")
}
