package broker

import (
	"context"
	"encoding/json"

	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Topic carries every gate event.
const Topic = "gate.service"

type Broker struct {
	Conn       *nats.Conn
	InstanceId string
}

func NewBroker(nc *nats.Conn, instanceId string) *Broker {
	return &Broker{
		Conn:       nc,
		InstanceId: instanceId,
	}
}

// Publish wraps data in a comm.Message and publishes it on Topic.
func (b *Broker) Publish(ctx context.Context, eventType string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := comm.NewMessage(eventType, data, b.InstanceId)
	if err != nil {
		log.Errorf("unable to marshal %s event: %s", eventType, err)
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return err
	}

	return b.publish(Topic, payload)
}

// Subscribe consumes gate events from every instance and hands each decoded
// message to handle.
func (b *Broker) Subscribe(handle func(*comm.Message)) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(Topic, func(msgNats *nats.Msg) {
		message := &comm.Message{}
		if err := json.Unmarshal(msgNats.Data, message); err != nil {
			log.Errorf("Error decoding gate event: %s", err)
			return
		}

		switch message.Type {
		case comm.EventCheckedIn, comm.EventCheckedOut, comm.EventReconciled:
			handle(message)
		default:
			log.Warnf("unknown gate event: %s", message.Type)
		}
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
