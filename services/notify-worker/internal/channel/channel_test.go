package channel

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

func TestBodyIncludesNote(t *testing.T) {
	p := delivery.Payload{
		ReservationID: "res-1",
		CustomerName:  "Aoi Tanaka",
		Status:        "confirmed",
		StartTime:     "2026-09-01T10:00:00Z",
		EndTime:       "2026-09-01T11:00:00Z",
		Note:          "bring photo reference",
	}
	body := Body(p)
	for _, want := range []string{"res-1", "Aoi Tanaka", "confirmed", "bring photo reference"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}

	p.Note = ""
	if strings.Contains(Body(p), "Note:") {
		t.Error("body should omit note section when note is empty")
	}
}

func TestEmailSendRequiresRecipient(t *testing.T) {
	s := NewEmailSender("localhost", "1025", "")
	err := s.Send(context.Background(), delivery.Payload{CustomerName: "X"})
	if err == nil {
		t.Fatal("expected error for missing recipient email")
	}
}

func TestEmailSendHonorsContextDeadline(t *testing.T) {
	// A server that accepts the connection but never sends the SMTP
	// greeting. The send must give up at the context deadline.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-context.Background().Done()
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	s := NewEmailSender(host, port, "")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.Send(ctx, delivery.Payload{CustomerName: "X", CustomerEmail: "x@example.com"})
	if err == nil {
		t.Fatal("expected error from silent server")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("send did not respect deadline, took %v", elapsed)
	}
}
