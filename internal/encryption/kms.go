package encryption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

var ErrMissingKey = errors.New("KMS key id is required")

// KMSAPI is the subset of the KMS client used here.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
}

// Cipher encrypts journal fields with KMS. Every ciphertext is bound to the
// owning user through the encryption context, so a row copied to another
// user will not decrypt.
type Cipher struct {
	client KMSAPI
	keyID  string
}

func NewCipher(ctx context.Context, keyID string) (*Cipher, error) {
	if keyID == "" {
		return nil, ErrMissingKey
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewCipherWithClient(kms.NewFromConfig(cfg), keyID), nil
}

func NewCipherWithClient(client KMSAPI, keyID string) *Cipher {
	return &Cipher{client: client, keyID: keyID}
}

func encryptionContext(userID string) map[string]string {
	return map[string]string{
		"Purpose": "journal-entry",
		"Service": "calm-backend",
		"UserId":  userID,
	}
}

// Encrypt returns base64 ciphertext. Empty input stays empty.
func (c *Cipher) Encrypt(ctx context.Context, userID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	out, err := c.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(c.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: encryptionContext(userID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt journal field: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

func (c *Cipher) Decrypt(ctx context.Context, userID, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		EncryptionContext: encryptionContext(userID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to decrypt journal field: %w", err)
	}
	return string(out.Plaintext), nil
}

func (c *Cipher) EncryptAll(ctx context.Context, userID string, values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		enc, err := c.Encrypt(ctx, userID, v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}

func (c *Cipher) DecryptAll(ctx context.Context, userID string, values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		dec, err := c.Decrypt(ctx, userID, v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = dec
	}
	return out, nil
}

// Validate checks that the key exists and is usable. Called once at cold start.
func (c *Cipher) Validate(ctx context.Context) error {
	_, err := c.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(c.keyID)})
	if err != nil {
		return fmt.Errorf("failed to validate KMS key %s: %w", c.keyID, err)
	}
	return nil
}
