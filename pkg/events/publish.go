package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager fans a store event out to a set of watermill Publishers.
// A publisher is "subscribed" with the topic it wants events delivered on.
//
// The manager stamps every outgoing message with a sequence number in the
// order Publish is called, so consumers can detect gaps and reorderings.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], pub)
}

// Publish serializes the event to JSON and distributes it to all subscribed
// publishers on their respective topics.
func (s *PublisherManager) Publish(event StoreEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for topic, pubs := range s.Publishers {
		for _, pub := range pubs {
			err = pub.Publish(topic, msg)
			if err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish store event")
			}
		}
	}

	return nil
}

// PublishBlind publishes and only logs failures. Store mutations must never
// fail because an event consumer is broken.
func (s *PublisherManager) PublishBlind(event StoreEvent) {
	if s == nil {
		return
	}
	err := s.Publish(event)
	if err != nil {
		log.Warn().Err(err).Object("event", event).Msg("failed to publish store event")
	}
}
