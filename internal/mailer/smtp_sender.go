package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/smtp"
	"sync"
	"time"

	"github.com/knadh/smtppool"
)

// SMTPSender round-robins messages over one smtppool per configured server.
type SMTPSender struct {
	servers ServerList
	logger  *slog.Logger

	mu      sync.Mutex
	pools   []*smtppool.Pool
	counter uint64
}

func NewSMTPSender(servers ServerList, logger *slog.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SMTPSender{servers: servers, logger: logger}
	for _, srv := range servers.Servers {
		pool, err := connect(srv)
		if err != nil {
			logger.Error("error setting up smtp connection pool", slog.String("server", srv.Address()), slog.String("error", err.Error()))
			continue
		}
		s.pools = append(s.pools, pool)
	}
	if len(s.pools) == 0 {
		return nil, errors.New("no smtp server connection in the pool")
	}
	return s, nil
}

func connect(srv Server) (*smtppool.Pool, error) {
	var auth smtp.Auth
	if srv.Auth.Username != "" || srv.Auth.Password != "" {
		auth = smtp.PlainAuth("", srv.Auth.Username, srv.Auth.Password, srv.Host)
	}
	timeout := time.Duration(srv.SendTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conns := srv.Connections
	if conns <= 0 {
		conns = 2
	}
	return smtppool.New(smtppool.Opt{
		Host:            srv.Host,
		Port:            srv.Port,
		MaxConns:        conns,
		IdleTimeout:     timeout,
		PoolWaitTimeout: timeout,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: srv.InsecureSkipVerify,
			ServerName:         srv.Host,
		},
		Auth: auth,
	})
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.counter++
	idx := int(s.counter % uint64(len(s.pools)))
	pool := s.pools[idx]
	s.mu.Unlock()

	from := m.From
	if from == "" {
		from = s.servers.From
	}
	err := pool.Send(smtppool.Email{
		From:    from,
		Sender:  s.servers.Sender,
		ReplyTo: s.servers.ReplyTo,
		To:      m.To,
		Subject: m.Subject,
		HTML:    m.HTML,
		Text:    m.Text,
	})
	if err == nil {
		return nil
	}

	// reconnect the failing server so the next round-robin pass gets a fresh pool
	srv := s.servers.Servers[idx%len(s.servers.Servers)]
	s.logger.Error("error when trying to send email", slog.String("server", srv.Host), slog.String("error", err.Error()))
	if fresh, rerr := connect(srv); rerr != nil {
		s.logger.Error("cannot reconnect smtp pool", slog.String("server", srv.Host), slog.String("error", rerr.Error()))
	} else {
		s.mu.Lock()
		s.pools[idx] = fresh
		s.mu.Unlock()
		pool.Close()
	}
	return err
}

func (s *SMTPSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		p.Close()
	}
}
