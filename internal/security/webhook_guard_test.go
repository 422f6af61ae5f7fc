package security

import (
	"net"
	"testing"
	"time"
)

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "valid https URL", url: "https://hooks.example.com/slotman", wantErr: false},
		{name: "valid http URL", url: "http://hooks.example.com/notify", wantErr: false},
		{name: "empty URL", url: "", wantErr: true},
		{name: "disallowed scheme file", url: "file:///etc/passwd", wantErr: true},
		{name: "disallowed scheme ftp", url: "ftp://example.com/hook", wantErr: true},
		{name: "loopback IP", url: "http://127.0.0.1/hook", wantErr: true},
		{name: "private IP 10.x", url: "http://10.0.0.5/hook", wantErr: true},
		{name: "private IP 172.16.x", url: "http://172.16.0.1/hook", wantErr: true},
		{name: "private IP 192.168.x", url: "http://192.168.1.1/hook", wantErr: true},
		{name: "cloud metadata IP", url: "http://169.254.169.254/latest/meta-data/", wantErr: true},
		{name: "IPv6 loopback", url: "http://[::1]/hook", wantErr: true},
		{name: "localhost hostname", url: "http://localhost:8080/hook", wantErr: true},
		{name: "localhost mixed case", url: "http://LocalHost/hook", wantErr: true},
		{name: "public IP", url: "https://203.0.113.10/hook", wantErr: false},
		{name: "no host", url: "https:///path-only", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateWebhookURL(%q) = nil, want error", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateWebhookURL(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want bool
	}{
		{name: "loopback", ip: "127.0.0.1", want: true},
		{name: "private 10", ip: "10.255.255.255", want: true},
		{name: "link local", ip: "169.254.169.254", want: true},
		{name: "public", ip: "8.8.8.8", want: false},
		{name: "IPv6 unique local", ip: "fd00::1", want: true},
		{name: "IPv6 public", ip: "2001:4860:4860::8888", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isBlockedIP(net.ParseIP(tt.ip))
			if got != tt.want {
				t.Errorf("isBlockedIP(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestNewSafeClient(t *testing.T) {
	client := NewSafeClient(5 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient returned nil")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("client.Timeout = %v, want 5s", client.Timeout)
	}
}
