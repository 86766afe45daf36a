// Command keygen writes a fresh RSA signing key in PEM form, suitable for
// IDENTITY_SIGNING_KEY_FILE. Run once per environment and keep the file out
// of version control.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"flag"
	"fmt"
	"log"
	"os"

	"plainsmart.org/internal/token"
)

func main() {
	out := flag.String("out", "signing-key.pem", "output file for the private key")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	pemBytes := token.EncodeRSAPrivateKeyPEM(key)
	if err := os.WriteFile(*out, pemBytes, 0o600); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	fmt.Printf("wrote %d-bit RSA key to %s\n", *bits, *out)
}
