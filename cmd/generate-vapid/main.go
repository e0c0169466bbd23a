package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
)

func main() {
	out := flag.String("out", "./data/vapid_keys.env", "file to write the keys to")
	subject := flag.String("subject", "mailto:admin@localhost", "VAPID subject")
	flag.Parse()

	log := logrus.New()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		log.Fatalf("Failed to generate VAPID keys: %v", err)
	}
	if _, err := base64.RawURLEncoding.DecodeString(publicKey); err != nil {
		log.Fatalf("Generated public key is not base64 URL encoded: %v", err)
	}

	envContent := fmt.Sprintf(`# Web Push VAPID Keys
# Add these to your .env file or export them as environment variables

VAPID_PUBLIC_KEY=%s
VAPID_PRIVATE_KEY=%s
VAPID_SUBJECT=%s
`, publicKey, privateKey, *subject)

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Failed to create %s: %v", filepath.Dir(*out), err)
	}
	if err := os.WriteFile(*out, []byte(envContent), 0600); err != nil {
		log.Fatalf("Failed to write keys to file: %v", err)
	}

	log.WithField("file", *out).Info("VAPID keys generated")
	fmt.Println(envContent)
}
