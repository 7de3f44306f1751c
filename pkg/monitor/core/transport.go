package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jabolina/relt/pkg/relt"
	"github.com/kasami/monitor/pkg/monitor/types"
)

// Transport is the fanout broadcast primitive the protocol is built on.
// Every message published by any peer must be delivered to every peer,
// including the sender; the peer itself filters out its own messages
// where the protocol requires it (§9 of the design notes).
//
// Delivery is reliable and ordered per-sender, never globally ordered.
type Transport interface {
	// Publish broadcasts a message to every peer in the group.
	Publish(ctx context.Context, message types.Message) error

	// Listen returns the channel every inbound message is delivered on.
	Listen() <-chan types.Message

	// Close tears down the underlying connection.
	Close() error
}

// ReliableTransport is the Transport backed by relt's fanout exchange.
// All peers in a group bind the same GroupAddress so relt fans each
// publish out to every subscriber.
type ReliableTransport struct {
	log      types.Logger
	relt     *relt.Relt
	address  relt.GroupAddress
	producer chan types.Message
	context  context.Context
	finish   context.CancelFunc
}

// NewTransport dials relt using the group's shared fanout address, with
// this peer's id as its distinguishing subscriber name.
func NewTransport(configuration *types.Configuration, log types.Logger) (Transport, error) {
	address := relt.GroupAddress(configuration.GroupAddress)
	conf := relt.DefaultReltConfiguration()
	conf.Name = fmt.Sprintf("monitor-peer-%d", configuration.LocalID)
	conf.Exchange = address
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, err
	}

	ctx, done := context.WithCancel(context.Background())
	t := &ReliableTransport{
		log:      log,
		relt:     r,
		address:  address,
		producer: make(chan types.Message, 128),
		context:  ctx,
		finish:   done,
	}
	NewInvoker().Spawn(t.poll)
	return t, nil
}

// Publish implements Transport.
func (r *ReliableTransport) Publish(ctx context.Context, message types.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		r.log.Errorf("failed marshalling message %#v. %v", message, err)
		return err
	}

	return r.relt.Broadcast(ctx, relt.Send{
		Address: r.address,
		Data:    data,
	})
}

// Listen implements Transport.
func (r *ReliableTransport) Listen() <-chan types.Message {
	return r.producer
}

// Close implements Transport.
func (r *ReliableTransport) Close() error {
	r.finish()
	return r.relt.Close()
}

// poll drains relt's inbound channel and hands each delivery to consume,
// for as long as the transport's context is alive.
func (r *ReliableTransport) poll() {
	listener, err := r.relt.Consume()
	if err != nil {
		r.log.Fatalf("failed consuming from relt: %v", err)
	}

	for {
		select {
		case <-r.context.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			r.consume(recv)
		}
	}
}

// consume decodes a raw relt delivery and forwards it to the producer
// channel. Malformed payloads are a serialization fault (§7): logged and
// dropped, never fatal to the transport itself.
func (r *ReliableTransport) consume(recv relt.Recv) {
	if recv.Error != nil {
		r.log.Errorf("failed consuming message: %v", recv.Error)
		return
	}

	if recv.Data == nil {
		r.log.Warnf("received empty delivery")
		return
	}

	var m types.Message
	if err := json.Unmarshal(recv.Data, &m); err != nil {
		r.log.Errorf("failed unmarshalling message: %v", err)
		return
	}

	select {
	case <-r.context.Done():
	case r.producer <- m:
	}
}
