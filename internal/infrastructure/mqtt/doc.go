// Package mqtt is the transport between zigbee-core and each
// coordinator's zigbee2mqtt instance. One Client per coordinator keeps
// meshes independent: losing one broker never disturbs another.
//
// The Client handles reconnection with bounded backoff, replays
// subscriptions after a reconnect, and announces its own liveness on a
// retained service status topic. A Last Will registered at connect time
// flips that status to offline if the process dies without a clean
// shutdown, so peers distinguish a crash from a restart.
//
// Typical use:
//
//	client, err := mqtt.Connect(coord)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Root: coord.RootTopic}
//	err = client.Subscribe(topics.All(), 1, func(topic string, payload []byte) error {
//	    return bridge.Route(topic, payload)
//	})
//
// Production brokers should require TLS and authenticated clients;
// anonymous plain tcp is for local development only.
package mqtt
