package config

import "testing"

func TestEnvDefaults(t *testing.T) {
	t.Setenv("RASPCLAWS_ADDR", "")
	t.Setenv("RASPCLAWS_USER", "")
	t.Setenv("MQTT_BROKER", "")

	if Addr() != DefaultAddr {
		t.Errorf("Addr: %q", Addr())
	}
	if User() != DefaultUser || Password() != DefaultPassword {
		t.Errorf("credentials: %q/%q", User(), Password())
	}
	if MQTTBroker() != "" {
		t.Errorf("MQTTBroker: %q", MQTTBroker())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RASPCLAWS_ADDR", ":8080")
	t.Setenv("RASPCLAWS_PASS", "s3cret")
	t.Setenv("MQTT_PREFIX", "claws/1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "many")
	t.Setenv("TEST_BOOL", "true")

	if Addr() != ":8080" || Password() != "s3cret" || MQTTPrefix() != "claws/1" {
		t.Errorf("overrides: %q %q %q", Addr(), Password(), MQTTPrefix())
	}
	if EnvInt("TEST_INT", 1) != 42 || EnvInt("TEST_BAD_INT", 7) != 7 {
		t.Error("EnvInt")
	}
	if !EnvBool("TEST_BOOL", false) || EnvBool("TEST_MISSING_BOOL", false) {
		t.Error("EnvBool")
	}
}
