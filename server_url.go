package main

import (
	"fmt"
	"net"
	"strings"
)

// endpoints are the human-friendly addresses announced at startup.
type endpoints struct {
	HTTP   string
	Viewer string
	// GRPC is empty when the gRPC listener is disabled.
	GRPC string
}

// advertisedEndpoints derives reachable URLs from the configured listen addresses.
// 1.- Decide between plain and TLS schemes for both HTTP and websocket.
// 2.- Normalise wildcard hosts so the message always shows a reachable host:port pair.
func advertisedEndpoints(httpAddr, grpcAddr string, tlsEnabled bool) endpoints {
	httpScheme, wsScheme := "http", "ws"
	if tlsEnabled {
		httpScheme, wsScheme = "https", "wss"
	}
	host := normaliseHostPort(httpAddr)
	out := endpoints{
		HTTP:   fmt.Sprintf("%s://%s", httpScheme, host),
		Viewer: fmt.Sprintf("%s://%s/ws", wsScheme, host),
	}
	if strings.TrimSpace(grpcAddr) != "" {
		out.GRPC = normaliseHostPort(grpcAddr)
	}
	return out
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
