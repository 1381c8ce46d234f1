package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://wh2.tu-dresden.de/feed.xml", wantErr: false},
		{url: "http://93.184.216.34/rss", wantErr: false},
		{url: "", wantErr: true},
		{url: "ftp://example.com/feed", wantErr: true},
		{url: "file:///etc/passwd", wantErr: true},
		{url: "http://localhost/feed", wantErr: true},
		{url: "http://127.0.0.1:8080/feed", wantErr: true},
		{url: "http://10.1.2.3/feed", wantErr: true},
		{url: "http://169.254.169.254/latest/meta-data", wantErr: true},
		{url: "http://[::1]/feed", wantErr: true},
		{url: "https:///nohost", wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestNewOutboundClient_BlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewOutboundClient(2 * time.Second)
	resp, err := client.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected request to loopback test server to be blocked")
	}
}
