// cmd/security/key_gen.go
package main

import (
	"fmt"
	"log"

	"settlement-service/internal/security"
)

func main() {
	key, err := security.GenerateMasterKey()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==============================================")
	fmt.Println("Generated AES-256 Encryption Key:")
	fmt.Println("==============================================")
	fmt.Println(key)
	fmt.Println("==============================================")
	fmt.Println("Key hash (stored next to every encrypted private key):")
	fmt.Println(security.HashKeyString(key))
	fmt.Println("==============================================")
	fmt.Println("Add this to your .env file as:")
	fmt.Println("CRYPTO_ENCRYPTION_KEY=" + key)
	fmt.Println("When rotating, move the previous key into CRYPTO_FALLBACK_KEYS")
	fmt.Println("==============================================")
	fmt.Println("KEEP THIS KEY SECURE!")
	fmt.Println("DO NOT COMMIT TO VERSION CONTROL!")
	fmt.Println("==============================================")
}
