package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// ValkeyProvider implements Provider backed by a Valkey/Redis-compatible
// server, speaking just enough RESP for GET/SET/DEL.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          bool
}

// NewValkeyProvider creates a Provider using the supplied configuration. It
// pings the target once to fail fast on bad credentials or connectivity.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}

	provider := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	err := provider.withConn(ctx, func(vc *valkeyConn) error {
		if err := vc.writeCommand("PING"); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		if reply.typ == replyError {
			return fmt.Errorf("valkey ping: %s", string(reply.data))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.withConn(ctx, func(vc *valkeyConn) error {
		if err := vc.writeCommand("GET", key); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		switch reply.typ {
		case replyNil:
			return ErrCacheMiss
		case replyBulk:
			payload = reply.data
			return nil
		case replyError:
			return fmt.Errorf("valkey GET: %s", string(reply.data))
		default:
			return fmt.Errorf("unexpected valkey reply type %q for GET", reply.typ)
		}
	})
	return payload, err
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.withConn(ctx, func(vc *valkeyConn) error {
		args := []string{key, string(value)}
		if ttl > 0 {
			args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
		}
		if err := vc.writeCommand("SET", args...); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		if reply.typ == replyError {
			return fmt.Errorf("valkey SET: %s", string(reply.data))
		}
		return nil
	})
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.withConn(ctx, func(vc *valkeyConn) error {
		if err := vc.writeCommand("DEL", key); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		if reply.typ == replyError {
			return fmt.Errorf("valkey DEL: %s", string(reply.data))
		}
		return nil
	})
}

// Close releases resources. Connections are per-operation, so nothing is held.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) withConn(ctx context.Context, fn func(*valkeyConn) error) error {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		td := tls.Dialer{NetDialer: &dialer}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("dial valkey: %w", err)
	}
	defer conn.Close()

	vc := &valkeyConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		readTimeout:  p.cfg.ReadTimeout,
		writeTimeout: p.cfg.WriteTimeout,
	}

	if err := vc.handshake(p.cfg); err != nil {
		return err
	}
	return fn(vc)
}

type replyType byte

const (
	replySimple replyType = '+'
	replyError  replyType = '-'
	replyInt    replyType = ':'
	replyBulk   replyType = '$'
	replyNil    replyType = '0'
)

type reply struct {
	typ  replyType
	data []byte
}

type valkeyConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (vc *valkeyConn) handshake(cfg ValkeyConfig) error {
	if cfg.Password != "" {
		args := []string{cfg.Password}
		if cfg.Username != "" {
			args = []string{cfg.Username, cfg.Password}
		}
		if err := vc.writeCommand("AUTH", args...); err != nil {
			return err
		}
		r, err := vc.readReply()
		if err != nil {
			return err
		}
		if r.typ == replyError {
			return fmt.Errorf("valkey auth failed: %s", string(r.data))
		}
	}
	if cfg.DB != 0 {
		if err := vc.writeCommand("SELECT", strconv.Itoa(cfg.DB)); err != nil {
			return err
		}
		r, err := vc.readReply()
		if err != nil {
			return err
		}
		if r.typ == replyError {
			return fmt.Errorf("valkey select db %d: %s", cfg.DB, string(r.data))
		}
	}
	return nil
}

func (vc *valkeyConn) writeCommand(name string, args ...string) error {
	if vc.writeTimeout > 0 {
		if err := vc.conn.SetWriteDeadline(time.Now().Add(vc.writeTimeout)); err != nil {
			return err
		}
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)+1), 10)
	buf = append(buf, '\r', '\n')
	buf = appendBulk(buf, name)
	for _, arg := range args {
		buf = appendBulk(buf, arg)
	}
	_, err := vc.conn.Write(buf)
	return err
}

func appendBulk(buf []byte, value string) []byte {
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(value)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, value...)
	return append(buf, '\r', '\n')
}

func (vc *valkeyConn) readReply() (reply, error) {
	if vc.readTimeout > 0 {
		if err := vc.conn.SetReadDeadline(time.Now().Add(vc.readTimeout)); err != nil {
			return reply{}, err
		}
	}

	line, err := vc.readLine()
	if err != nil {
		return reply{}, err
	}
	if len(line) == 0 {
		return reply{}, errors.New("empty valkey reply")
	}

	switch line[0] {
	case '+':
		return reply{typ: replySimple, data: line[1:]}, nil
	case '-':
		return reply{typ: replyError, data: line[1:]}, nil
	case ':':
		return reply{typ: replyInt, data: line[1:]}, nil
	case '$':
		size, err := strconv.Atoi(string(line[1:]))
		if err != nil {
			return reply{}, fmt.Errorf("bad bulk length: %w", err)
		}
		if size < 0 {
			return reply{typ: replyNil}, nil
		}
		data := make([]byte, size+2)
		if _, err := io.ReadFull(vc.reader, data); err != nil {
			return reply{}, err
		}
		return reply{typ: replyBulk, data: data[:size]}, nil
	default:
		return reply{}, fmt.Errorf("unsupported valkey reply prefix %q", line[0])
	}
}

func (vc *valkeyConn) readLine() ([]byte, error) {
	line, err := vc.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errors.New("malformed valkey reply line")
	}
	return line[:len(line)-2], nil
}
