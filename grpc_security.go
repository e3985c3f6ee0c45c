package main

import (
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	configpkg "rdpso/simulator/internal/config"
	grpcapi "rdpso/simulator/internal/grpc"
	"rdpso/simulator/internal/logging"
)

// configureGRPCSecurity derives server options from the service config:
// TLS when a key pair is configured, and admin-token checks on mutating RPCs.
func configureGRPCSecurity(cfg *configpkg.Config, logger *logging.Logger) ([]grpc.ServerOption, error) {
	if cfg == nil {
		return nil, fmt.Errorf("grpc config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(int(cfg.MaxPayloadBytes)),
		grpc.ChainUnaryInterceptor(grpcapi.AdminUnaryInterceptor(cfg.AdminToken)),
		grpc.ChainStreamInterceptor(grpcapi.AdminStreamInterceptor(cfg.AdminToken)),
	}

	if cfg.TLSCertPath != "" {
		creds, err := loadTLSCredentials(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
		logger.Info("gRPC TLS enabled")
	}
	if cfg.AdminToken == "" {
		logger.Warn("gRPC admin token not configured; Step and Reset are open")
	} else {
		logger.Info("gRPC admin token authentication enabled")
	}
	return opts, nil
}

func loadTLSCredentials(certPath, keyPath string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load server keypair: %w", err)
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}
