// Package zigbee translates zigbee2mqtt MQTT traffic into platform
// device state and platform commands back into zigbee2mqtt publishes.
//
// One Bridge serves one coordinator (one zigbee2mqtt instance, one
// broker connection, one root topic). Inbound messages flow through a
// fixed pipeline:
//
//	MQTT subscription
//	    -> Classifier   assigns a class (bridge, group, device) and a
//	                    per-coordinator sequence number
//	    -> Dispatcher   single worker, FIFO per coordinator
//	    -> BridgeTopics coordinator metadata: device and group
//	                    snapshots, bridge state, info, logging
//	    -> Mapper       device and group state reports, availability
//
// The Mapper is the heart of the package. For each state report it
// looks up the mesh device in the Topology, resolves the linked
// platform device through the Directory, and runs the device
// archetype's property handlers. Handlers coerce raw payload values,
// apply unit conversions, route properties to secondary devices, and
// batch state writes so each report flushes to the directory once.
// Numeric properties also fan out to the optional Telemetry sink.
//
// Outbound, the Commander builds archetype-appropriate payloads and
// publishes them to {root}/{friendlyName}/set. Multi-channel devices
// address individual endpoints through suffixed state keys.
//
// Every error on the inbound path is non-fatal: malformed payloads,
// unknown devices and unroutable properties are logged at a severity
// matching their cause and the message is discarded, never retried.
package zigbee
