package mqtt

// HandleMessage exposes the message callback to tests.
func (s *Subscriber) HandleMessage(topic string, payload []byte) {
	s.handleMessage(topic, payload)
}
