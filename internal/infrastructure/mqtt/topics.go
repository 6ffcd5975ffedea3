package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the RPC topic layout for one backend object on the bus.
//
// All topics share the prefix {service}/{object path}/{interface}, with the
// object path's leading slash removed:
//
//	topics := mqtt.NewTopics("com.czone.Backend", "/com/czone/Backend", "com.czone.Backend")
//	topics.Call("GetConfigAll")
//	// Returns: "com.czone.Backend/com/czone/Backend/com.czone.Backend/call/GetConfigAll"
type Topics struct {
	prefix string
}

// NewTopics returns the topic builder for the given backend object.
func NewTopics(service, objectPath, iface string) Topics {
	return Topics{
		prefix: fmt.Sprintf("%s/%s/%s", service, strings.TrimPrefix(objectPath, "/"), iface),
	}
}

// Prefix returns the shared topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Call returns the topic a method invocation is published on.
func (t Topics) Call(method string) string {
	return t.prefix + "/call/" + method
}

// Reply returns the topic the backend publishes replies for clientID on.
func (t Topics) Reply(clientID string) string {
	return t.prefix + "/reply/" + clientID
}

// Signal returns the topic the backend emits the named signal on.
func (t Topics) Signal(name string) string {
	return t.prefix + "/signal/" + name
}
