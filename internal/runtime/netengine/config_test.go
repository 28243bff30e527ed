package netengine

import "testing"

func TestServerConfigValidateRejectsDefaultPort(t *testing.T) {
	cfg := NewServerConfig(NoopServerCallback{})
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject the literal default port 80808 as out of 16-bit range")
	}
}

func TestServerConfigValidateRequiresCallback(t *testing.T) {
	cfg := &ServerConfig{Port: "9000"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject a nil Callback")
	}
}

func TestServerConfigValidateAcceptsGoodConfig(t *testing.T) {
	cfg := NewServerConfig(NoopServerCallback{})
	cfg.Port = "9000"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestServerConfigValidateRejectsBadProtocolVersion(t *testing.T) {
	cfg := NewServerConfig(NoopServerCallback{})
	cfg.Port = "9000"
	cfg.ProtocolVersion = "not-a-semver"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject a malformed ProtocolVersion")
	}
}

func TestClientConfigValidateRequiresHostname(t *testing.T) {
	cfg := NewClientConfig(NoopClientCallback{})
	cfg.Port = "9000"
	cfg.Hostname = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject an empty hostname")
	}
}

func TestClientConfigValidateAcceptsGoodConfig(t *testing.T) {
	cfg := NewClientConfig(NoopClientCallback{})
	cfg.Port = "9000"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidatePortRange(t *testing.T) {
	cases := map[string]bool{
		"0":     false,
		"1":     true,
		"65535": true,
		"65536": false,
		"abc":   false,
	}
	for port, want := range cases {
		err := validatePort(port)
		if (err == nil) != want {
			t.Errorf("validatePort(%q) valid=%v, want %v", port, err == nil, want)
		}
	}
}
