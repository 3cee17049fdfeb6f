package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSSRFGuardInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard()
}

func TestNewSSRFGuard_DefaultPorts(t *testing.T) {
	g := NewSSRFGuard()
	if len(g.allowedPorts) != 2 || g.allowedPorts[0] != 80 || g.allowedPorts[1] != 443 {
		t.Errorf("allowedPorts = %v, want [80 443]", g.allowedPorts)
	}
}

func TestNewSafeClient_TimeoutAndTransport(t *testing.T) {
	client := NewSSRFGuard().NewSafeClient(5*time.Second, 1<<20)

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected custom Transport from safeurl")
	}
}

// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5*time.Second, 1<<20)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://intranet.stxnext.pl/api/users.xml", false},
		{"public https explicit port", "https://intranet.stxnext.pl:443/api/users.xml", false},
		{"public http", "http://example.org/users.xml", false},
		{"empty", "", true},
		{"no scheme", "not-a-url", true},
		{"ftp", "ftp://example.com/users.xml", true},
		{"file", "file:///etc/passwd", true},
		{"disallowed port", "https://example.com:8443/users.xml", true},
		{"private 10/8", "http://10.0.0.1/users.xml", true},
		{"private 172.16/12", "http://172.31.255.255/users.xml", true},
		{"private 192.168/16", "http://192.168.1.100/users.xml", true},
		{"loopback", "http://127.0.0.1/users.xml", true},
		{"localhost", "http://LOCALHOST/users.xml", true},
		{"metadata", "http://169.254.169.254/latest/meta-data/", true},
		{"ipv6 loopback", "http://[::1]/users.xml", true},
		{"zero address", "http://0.0.0.0/users.xml", true},
	}

	guard := NewSSRFGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL_CustomPorts(t *testing.T) {
	guard := NewSSRFGuard(8443)

	if err := guard.ValidateURL("https://example.com:8443/users.xml"); err != nil {
		t.Errorf("expected port 8443 to be allowed, got %v", err)
	}
	if err := guard.ValidateURL("https://example.com:443/users.xml"); err == nil {
		t.Error("expected port 443 to be rejected when only 8443 is allowed")
	}
}
