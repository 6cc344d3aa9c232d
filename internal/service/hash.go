package service

import "golang.org/x/crypto/argon2"

func argon2IDKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}
