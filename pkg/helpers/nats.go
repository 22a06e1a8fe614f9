package helpers

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// NatsPublish marshals payload to JSON and publishes it on subject.
func NatsPublish(nc *nats.Conn, subject string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return nc.Publish(subject, payloadJSON)
}
