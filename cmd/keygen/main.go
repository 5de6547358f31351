// Command keygen writes a fresh Ed25519 key pair for signing audit
// checkpoints.
//
// Usage:
//
//	go run ./cmd/keygen                          # storage/keys/audit_ed25519.{key,pub}
//	go run ./cmd/keygen -key a.key -pub a.pub    # custom paths
//	go run ./cmd/keygen -force                   # overwrite existing files
package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/chibuike-kt/risk-engine/internal/checkpoint"
	"github.com/chibuike-kt/risk-engine/internal/config"
)

func main() {
	keyPath := flag.String("key", config.DefaultSigningKeyPath, "private key output path (PKCS#8 PEM)")
	pubPath := flag.String("pub", config.DefaultPublicKeyPath, "public key output path (PKIX PEM)")
	force := flag.Bool("force", false, "overwrite existing key files")
	flag.Parse()

	if !*force {
		for _, p := range []string{*keyPath, *pubPath} {
			if _, err := os.Stat(p); err == nil {
				log.Fatalf("%s already exists (use -force to overwrite)", p)
			} else if !errors.Is(err, fs.ErrNotExist) {
				log.Fatalf("Failed to check %s: %v", p, err)
			}
		}
	}

	privPEM, pubPEM, err := checkpoint.GenerateKeyPair()
	if err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}

	if err := writeFile(*keyPath, privPEM, 0o600); err != nil {
		log.Fatalf("Failed to write private key: %v", err)
	}
	if err := writeFile(*pubPath, pubPEM, 0o644); err != nil {
		log.Fatalf("Failed to write public key: %v", err)
	}

	log.Printf("wrote %s and %s", *keyPath, *pubPath)
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}
