package consumer

import "github.com/nats-io/nats.go"

// NatsMsg adapts a JetStream *nats.Msg to the Message interface Process
// consumes.
type NatsMsg struct {
	Msg *nats.Msg
}

func (m NatsMsg) Subject() string { return m.Msg.Subject }
func (m NatsMsg) Data() []byte    { return m.Msg.Data }

func (m NatsMsg) Headers() map[string]string {
	out := make(map[string]string, len(m.Msg.Header))
	for k, v := range m.Msg.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (m NatsMsg) Ack() error  { return m.Msg.Ack() }
func (m NatsMsg) Nak() error  { return m.Msg.Nak() }
func (m NatsMsg) Term() error { return m.Msg.Term() }
