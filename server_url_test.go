package main

import "testing"

func TestAdvertisedEndpoints(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		httpAddr string
		grpcAddr string
		tls      bool
		want     endpoints
	}{
		"defaults": {
			httpAddr: ":43127", grpcAddr: ":43128",
			want: endpoints{HTTP: "http://localhost:43127", Viewer: "ws://localhost:43127/ws", GRPC: "localhost:43128"},
		},
		"ipv4_any": {
			httpAddr: "0.0.0.0:9000",
			want:     endpoints{HTTP: "http://localhost:9000", Viewer: "ws://localhost:9000/ws"},
		},
		"ipv6_custom": {
			httpAddr: "[2001:db8::1]:43127", grpcAddr: "[::]:7000",
			want: endpoints{HTTP: "http://[2001:db8::1]:43127", Viewer: "ws://[2001:db8::1]:43127/ws", GRPC: "localhost:7000"},
		},
		"tls_enabled": {
			httpAddr: "127.0.0.1:443", tls: true,
			want: endpoints{HTTP: "https://127.0.0.1:443", Viewer: "wss://127.0.0.1:443/ws"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := advertisedEndpoints(tc.httpAddr, tc.grpcAddr, tc.tls)
			if got != tc.want {
				t.Fatalf("advertisedEndpoints(%q, %q, %t) = %+v, want %+v", tc.httpAddr, tc.grpcAddr, tc.tls, got, tc.want)
			}
		})
	}
}

func TestNormaliseHostPortNoPort(t *testing.T) {
	t.Parallel()

	if got := normaliseHostPort(""); got != "localhost" {
		t.Fatalf("expected localhost for empty address, got %q", got)
	}
	if got := normaliseHostPort("example.com"); got != "example.com" {
		t.Fatalf("expected bare host to pass through, got %q", got)
	}
}
