// Package mailer renders the auth emails and hands them to a transport.
package mailer

import (
	"context"
	"sync"
	"time"
)

type Message struct {
	From    string
	To      []string
	Subject string
	HTML    []byte
	Text    []byte
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Options struct {
	App    string
	From   string
	OTPTTL time.Duration
}

// Mailer implements service.EmailService on top of a Sender.
type Mailer struct {
	sender Sender
	opts   Options
	tmpl   templates
}

func New(sender Sender, opts Options) (*Mailer, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if opts.App == "" {
		opts.App = "Auth System"
	}
	return &Mailer{sender: sender, opts: opts, tmpl: tmpl}, nil
}

func (m *Mailer) SendWelcome(ctx context.Context, to, name string) error {
	return m.send(ctx, kindWelcome, templateData{Name: name, Email: to}, to)
}

func (m *Mailer) SendVerificationOTP(ctx context.Context, to, name, otp string) error {
	return m.send(ctx, kindVerify, templateData{Name: name, Email: to, OTP: otp}, to)
}

func (m *Mailer) SendPasswordResetOTP(ctx context.Context, to, name, otp string) error {
	return m.send(ctx, kindReset, templateData{Name: name, Email: to, OTP: otp}, to)
}

func (m *Mailer) send(ctx context.Context, k kind, d templateData, to string) error {
	d.App = m.opts.App
	d.TTL = humanTTL(m.opts.OTPTTL)
	subject, html, err := m.tmpl.render(k, d)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{From: m.opts.From, To: []string{to}, Subject: subject, HTML: html})
}

// Recorder is an in-memory Sender for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
