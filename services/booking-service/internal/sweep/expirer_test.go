package sweep

import (
	"io"
	"log/slog"
	"testing"

	"github.com/yuto-kimura/salonbook/services/booking-service/internal/deliveries"
)

func TestNewExpirerKeepsConfiguredChannels(t *testing.T) {
	e := NewExpirer(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)),
		[]string{deliveries.ChannelEmail, deliveries.ChannelSlack}, 0)

	if len(e.channels) != 2 || e.channels[0] != deliveries.ChannelEmail || e.channels[1] != deliveries.ChannelSlack {
		t.Fatalf("channels = %v", e.channels)
	}
}

func TestNewExpirerDefaultsToLogChannel(t *testing.T) {
	e := NewExpirer(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 0)

	if len(e.channels) != 1 || e.channels[0] != deliveries.ChannelLog {
		t.Fatalf("channels = %v, want [%s]", e.channels, deliveries.ChannelLog)
	}
}
