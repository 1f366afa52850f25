package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"github.com/codewandler/collab-go/core/rpc"
)

const (
	channelRPC    = "collab-rpc"
	channelEvents = "collab-events"

	keepAliveRequest = "keepalive@collab"
)

// Dialer implements rpc.Dialer over SSH. Each Dial opens a fresh SSH
// connection with the two protocol channels; the SSH client is torn down
// with the transport.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.HostKeyCallback == nil {
		return nil, fmt.Errorf("ssh: Config.HostKeyCallback is required")
	}
	if len(cfg.Auth) == 0 {
		auth, err := AuthFromAgent()
		if err != nil {
			return nil, err
		}
		cfg.Auth = []gossh.AuthMethod{auth}
	}
	return &Dialer{cfg: cfg}, nil
}

func (d *Dialer) Dial(ctx context.Context) (rpc.Transport, error) {
	addr := d.cfg.addr()
	log := d.cfg.log().With(slog.String("addr", addr))

	var nd net.Dialer
	tcp, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh: dial %s: %w", addr, err)
	}

	// the SSH handshake does not take a context; bound it with the conn
	// deadline instead
	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetDeadline(deadline)
	}

	clientCfg := &gossh.ClientConfig{
		User:            d.cfg.username(),
		Auth:            d.cfg.Auth,
		HostKeyCallback: d.cfg.HostKeyCallback,
	}
	sshConn, chans, reqs, err := gossh.NewClientConn(tcp, addr, clientCfg)
	if err != nil {
		_ = tcp.Close()
		return nil, fmt.Errorf("ssh: handshake: %w", err)
	}
	_ = tcp.SetDeadline(time.Time{})
	client := gossh.NewClient(sshConn, chans, reqs)

	rpcCh, err := openChannel(client, channelRPC)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	evCh, err := openChannel(client, channelEvents)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	t := rpc.NewStreamTransport(rpc.Channels{
		RPC:     rpcCh,
		Events:  evCh,
		Session: client,
	}, log)

	if interval := d.cfg.keepAlive(); interval > 0 {
		go keepAlive(client, t.Done(), interval, log)
	}
	return t, nil
}

func openChannel(client *gossh.Client, name string) (gossh.Channel, error) {
	ch, reqs, err := client.OpenChannel(name, nil)
	if err != nil {
		return nil, fmt.Errorf("ssh: open %s: %w", name, err)
	}
	go gossh.DiscardRequests(reqs)
	return ch, nil
}

// keepAlive pings the server on an interval so NAT mappings and the
// server's inactivity timer stay warm. A failed ping closes the client,
// which the stream transport observes as a read failure.
func keepAlive(client *gossh.Client, done <-chan struct{}, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest(keepAliveRequest, true, nil); err != nil {
				log.Warn("keepalive failed", slog.Any("error", err))
				_ = client.Close()
				return
			}
		}
	}
}
