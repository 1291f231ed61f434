package mailer

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

// 応答しないSMTPサーバーに対して、送信がctxの期限で打ち切られることを確認する。
func TestSMTPMailerSendTimesOutAgainstSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	// 接続は受け付けるがSMTPグリーティングを一切返さないサーバー
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	m := NewSMTPMailer(ln.Addr().String(), "no-reply@tenantry.local")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.Send(ctx, "alice@acme.example", "件名", "本文")
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected timeout error, got nil")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Send did not return before the context deadline")
	}
}

func TestSMTPMailerSendRejectsInvalidAddr(t *testing.T) {
	m := NewSMTPMailer("no-port-here", "no-reply@tenantry.local")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := m.Send(ctx, "alice@acme.example", "件名", "本文"); err == nil {
		t.Error("expected error for address without port, got nil")
	}
}

func TestLogMailerSendAlwaysSucceeds(t *testing.T) {
	m := NewLogMailer()
	if err := m.Send(context.Background(), "alice@acme.example", "件名", "本文"); err != nil {
		t.Errorf("Send failed: %v", err)
	}
}
