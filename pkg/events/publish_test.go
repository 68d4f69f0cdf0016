package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublisherManagerFansOutWithSequenceNumbers(t *testing.T) {
	pubSub := NewGoChannelPubSub(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, "chats")
	require.NoError(t, err)

	manager := NewPublisherManager()
	manager.SubscribePublisher("chats", pubSub)

	manager.PublishBlind(NewStoreEvent(EventTypeMessageAppended, "conv_1", "msg_1"))
	manager.PublishBlind(NewStoreEvent(EventTypeMessageDeleted, "conv_1", "msg_1"))

	first := receive(t, messages)
	require.Equal(t, "0", first.Metadata.Get("sequence_number"))

	var ev StoreEvent
	require.NoError(t, json.Unmarshal(first.Payload, &ev))
	require.Equal(t, EventTypeMessageAppended, ev.Type)
	require.Equal(t, "conv_1", ev.ConversationID)
	require.Equal(t, "msg_1", ev.MessageID)
	first.Ack()

	second := receive(t, messages)
	require.Equal(t, "1", second.Metadata.Get("sequence_number"))
	second.Ack()
}

func TestPublishBlindOnNilManager(t *testing.T) {
	var manager *PublisherManager
	// must not panic: stores without a publisher use a nil manager
	manager.PublishBlind(NewStoreEvent(EventTypeConversationAdded, "conv_1", ""))
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
