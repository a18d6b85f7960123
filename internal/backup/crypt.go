package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"
)

// encryptedMagic marks an encrypted artifact; the validator accepts it as a
// valid structural header alongside the raw pg_dump magic.
const encryptedMagic = "EVALBOARD_ENCRYPTED_BACKUP_V1\n"

// deriveEncryptionKey derives a 32-byte AES-256 key from the database
// password and a fixed salt, so backups can only be decrypted with knowledge
// of the source installation's credentials.
func deriveEncryptionKey(dbPassword string) []byte {
	salt := "EvalBoard-AES256-Backup-2025"
	hash := sha256.Sum256([]byte(dbPassword + salt))
	return hash[:]
}

// encryptFile encrypts inputPath into outputPath using AES-256-GCM with the
// magic header prepended.
func encryptFile(inputPath, outputPath, dbPassword string) error {
	plaintext, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	block, err := aes.NewCipher(deriveEncryptionKey(dbPassword))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to create nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	output := append([]byte(encryptedMagic), ciphertext...)

	if err := os.WriteFile(outputPath, output, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted file: %w", err)
	}
	return nil
}

// decryptFile reverses encryptFile.
func decryptFile(inputPath, outputPath, dbPassword string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read encrypted file: %w", err)
	}

	if !strings.HasPrefix(string(data), encryptedMagic) {
		return fmt.Errorf("invalid encrypted backup format")
	}
	ciphertext := data[len(encryptedMagic):]

	block, err := aes.NewCipher(deriveEncryptionKey(dbPassword))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decryption failed: %w", err)
	}

	if err := os.WriteFile(outputPath, plaintext, 0600); err != nil {
		return fmt.Errorf("failed to write decrypted file: %w", err)
	}
	return nil
}
