// Package config provides environment helpers for the raspclaws commands.
// Flags take precedence; these fill in whatever was left unset.
package config

import (
	"os"
	"strconv"
)

// Defaults.
const (
	DefaultAddr       = ":5000"
	DefaultUser       = "admin"
	DefaultPassword   = "123456"
	DefaultServerURL  = "http://localhost:5000"
	DefaultMQTTPrefix = "raspclaws"
	DefaultLogLevel   = "info"
)

// Env returns the value of key, or def if it is unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt returns key parsed as an integer, or def if unset or invalid.
func EnvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// EnvBool returns key parsed as a boolean, or def if unset or invalid.
func EnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// Addr returns the HTTP listen address from RASPCLAWS_ADDR.
func Addr() string {
	return Env("RASPCLAWS_ADDR", DefaultAddr)
}

// User returns the command-channel user from RASPCLAWS_USER.
func User() string {
	return Env("RASPCLAWS_USER", DefaultUser)
}

// Password returns the command-channel password from RASPCLAWS_PASS.
func Password() string {
	return Env("RASPCLAWS_PASS", DefaultPassword)
}

// CalibrationPath returns RASPCLAWS_CALIBRATION, or "" for the store default.
func CalibrationPath() string {
	return os.Getenv("RASPCLAWS_CALIBRATION")
}

// ServerURL returns the controller base URL for clients from RASPCLAWS_URL.
func ServerURL() string {
	return Env("RASPCLAWS_URL", DefaultServerURL)
}

// MQTTBroker returns MQTT_BROKER. Empty disables the MQTT bridge.
func MQTTBroker() string {
	return os.Getenv("MQTT_BROKER")
}

// MQTTPrefix returns the topic prefix from MQTT_PREFIX.
func MQTTPrefix() string {
	return Env("MQTT_PREFIX", DefaultMQTTPrefix)
}

// LogLevel returns LOG_LEVEL.
func LogLevel() string {
	return Env("LOG_LEVEL", DefaultLogLevel)
}
