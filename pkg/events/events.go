// Package events implements the project event bus (spec §3 "Project",
// §4.I): a thin publish layer over Redis pub/sub carrying node-updated and
// log notifications out to the controller.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/vnetlab/compute/pkg/corelog"
)

// Topic names published on the bus (spec §3).
const (
	TopicNodeUpdated = "node.updated"
	TopicLogWarning  = "log.warning"
	TopicLogError    = "log.error"
)

// Envelope is the JSON payload published on every topic.
type Envelope struct {
	ProjectID string      `json:"project_id"`
	NodeID    string      `json:"node_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Bus publishes project events to Redis pub/sub channels scoped by
// project id, so a controller subscribing to one project does not receive
// another's traffic.
type Bus struct {
	client    *redis.Client
	projectID string
}

// NewBus returns a Bus publishing to addr (e.g. "127.0.0.1:6379"), scoped
// to projectID.
func NewBus(addr, projectID string) *Bus {
	return &Bus{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		projectID: projectID,
	}
}

func (b *Bus) channel(topic string) string {
	return fmt.Sprintf("project:%s:%s", b.projectID, topic)
}

// Close releases the underlying Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// publish marshals env and publishes it on topic, logging (not returning)
// delivery failures: an event bus outage must never fail the operation
// that triggered the event.
func (b *Bus) publish(ctx context.Context, topic string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		corelog.Logger.Warnf("events: marshal %s event: %v", topic, err)
		return
	}
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		corelog.Logger.Warnf("events: publish %s event: %v", topic, err)
	}
}

// NodeUpdated publishes a node.updated event carrying the node's current
// representation.
func (b *Bus) NodeUpdated(nodeID string, data interface{}) {
	b.publish(context.Background(), TopicNodeUpdated, Envelope{
		ProjectID: b.projectID,
		NodeID:    nodeID,
		Data:      data,
	})
}

// Warning implements corenode.EventSink, publishing a log.warning event
// (spec §7's non-fatal BPF compile error row).
func (b *Bus) Warning(nodeID, message string) {
	b.publish(context.Background(), TopicLogWarning, Envelope{
		ProjectID: b.projectID,
		NodeID:    nodeID,
		Message:   message,
	})
}

// Error implements corenode.EventSink, publishing a log.error event (spec
// §7 "Subprocess termination callbacks emit log.error").
func (b *Bus) Error(nodeID, message string) {
	b.publish(context.Background(), TopicLogError, Envelope{
		ProjectID: b.projectID,
		NodeID:    nodeID,
		Message:   message,
	})
}
