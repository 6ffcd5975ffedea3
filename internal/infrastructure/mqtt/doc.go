// Package mqtt provides the broker connection the gateway uses as its local
// inter-process bus.
//
// The CZone backend and the gateway both attach to a broker on the loopback
// interface. Remote method calls and backend signals are carried as MQTT
// messages under a topic prefix derived from the backend's service, object
// path and interface names (see Topics).
//
//	Gateway ↔ local broker ↔ CZone backend
//
// This package manages:
//   - Connection to the broker (one attempt per Connect; callers own retries)
//   - Message publishing with payload and QoS validation
//   - Topic subscriptions with panic-safe handlers
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.Bus)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.Bus.Service, cfg.Bus.ObjectPath, cfg.Bus.Interface)
//	err = client.Subscribe(topics.Signal("Snapshot"), 1, handler)
package mqtt
