// Package config provides configuration loading for the Zigbee bridge core.
//
// Configuration is read from a YAML file with three layers of precedence:
// hardcoded defaults, file values, then ZIGBEECORE_* environment variables.
//
// The coordinators section is the heart of the file: one entry per physical
// Zigbee gateway, each with its own MQTT broker, root topic, and diagnostic
// topic filter. Everything else (database, api, influxdb, logging) is shared
// process-wide infrastructure.
package config
