package extraction

import (
	"log/slog"

	"cruiseledger-backend/lib/scrapers/clubroyale"
)

type MessageType string

const (
	MessageLog                   MessageType = "LOG"
	MessageProgress              MessageType = "PROGRESS"
	MessageOfferBatch            MessageType = "OFFER_BATCH"
	MessageCruiseBatch           MessageType = "CRUISE_BATCH"
	MessageLoyalty               MessageType = "LOYALTY"
	MessageStepComplete          MessageType = "STEP_COMPLETE"
	MessageNetworkCapture        MessageType = "NETWORK_CAPTURE"
	MessageNetworkCaptureHeaders MessageType = "NETWORK_CAPTURE_HEADERS"
	MessageComplete              MessageType = "EXTRACTION_COMPLETE"
	MessageError                 MessageType = "EXTRACTION_ERROR"
)

// Message is one unit on the one-way channel from the extraction run
// to the host. Data batches carry one logically-complete unit each: a
// card, an offer, or the loyalty snapshot.
type Message struct {
	Type MessageType `json:"type"`
	Step Step        `json:"step,omitempty"`

	// LOG
	Level slog.Level `json:"level,omitempty"`
	Text  string     `json:"text,omitempty"`

	// PROGRESS
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`

	// batches
	Offer   *clubroyale.OfferRecord   `json:"offer,omitempty"`
	Booking *clubroyale.BookingRecord `json:"booking,omitempty"`
	Hold    *clubroyale.HoldRecord    `json:"hold,omitempty"`
	// voyage enrichment for an already-known cruise
	Sailing *clubroyale.SailingRecord `json:"sailing,omitempty"`
	Loyalty *clubroyale.LoyaltySnapshot `json:"loyalty,omitempty"`

	// STEP_COMPLETE
	TotalCount int  `json:"totalCount,omitempty"`
	Warning    bool `json:"warning,omitempty"`

	// NETWORK_CAPTURE
	Endpoint    string `json:"endpoint,omitempty"`
	RecordCount int    `json:"recordCount,omitempty"`

	// NETWORK_CAPTURE_HEADERS
	Headers *clubroyale.CapturedHeaders `json:"headers,omitempty"`

	// EXTRACTION_ERROR
	Error string `json:"error,omitempty"`

	// flush barrier, closed by the receiver once every earlier
	// message has been consumed
	ack chan struct{}
}

// Sink is the delivery side of the transport. Delivery order is
// preserved per sender; implementations must not block the sender
// indefinitely.
type Sink interface {
	Send(msg Message)
}

// ChannelSink buffers messages on a channel for an in-process
// receiver. Close it only from the sending side once the terminal
// message has been sent.
type ChannelSink chan Message

func NewChannelSink() ChannelSink {
	return make(ChannelSink, 256)
}

// Flush blocks until the receiver has consumed every message sent
// before the call. Only meaningful while a Drain loop is running on
// the other end.
func (s ChannelSink) Flush() {
	ack := make(chan struct{})
	s <- Message{ack: ack}
	<-ack
}

func (s ChannelSink) Send(msg Message) {
	if msg.Type == MessageLog || msg.Type == MessageProgress {
		// a stalled receiver drops observability traffic rather than
		// wedging the extraction run. data batches always go through.
		select {
		case s <- msg:
		default:
			slog.Warn("transport buffer full, dropping message", "type", msg.Type)
		}
		return
	}
	s <- msg
}
