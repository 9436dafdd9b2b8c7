package encryption

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS "encrypts" by prefixing the user id from the encryption context.
type fakeKMS struct {
	describeErr error
}

func (f *fakeKMS) Encrypt(ctx context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	blob := append([]byte(in.EncryptionContext["UserId"]+":"), in.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob}, nil
}

func (f *fakeKMS) Decrypt(ctx context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	prefix := in.EncryptionContext["UserId"] + ":"
	if len(in.CiphertextBlob) < len(prefix) || string(in.CiphertextBlob[:len(prefix)]) != prefix {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob[len(prefix):]}, nil
}

func (f *fakeKMS) DescribeKey(ctx context.Context, in *kms.DescribeKeyInput, _ ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	return &kms.DescribeKeyOutput{}, f.describeErr
}

func TestCipher_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCipherWithClient(&fakeKMS{}, "alias/journal")

	enc, err := c.Encrypt(ctx, "u1", "felt shaky on the train")
	require.NoError(t, err)
	assert.NotEqual(t, "felt shaky on the train", enc)

	dec, err := c.Decrypt(ctx, "u1", enc)
	require.NoError(t, err)
	assert.Equal(t, "felt shaky on the train", dec)

	_, err = c.Decrypt(ctx, "u2", enc)
	assert.Error(t, err)
}

func TestCipher_EmptyAndArrays(t *testing.T) {
	ctx := context.Background()
	c := NewCipherWithClient(&fakeKMS{}, "alias/journal")

	enc, err := c.Encrypt(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, enc)

	all, err := c.EncryptAll(ctx, "u1", []string{"sleep", "work"})
	require.NoError(t, err)
	back, err := c.DecryptAll(ctx, "u1", all)
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep", "work"}, back)

	_, err = c.Decrypt(ctx, "u1", "%%%not-base64")
	assert.Error(t, err)
}

func TestCipher_Validate(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewCipherWithClient(&fakeKMS{}, "k").Validate(ctx))
	assert.Error(t, NewCipherWithClient(&fakeKMS{describeErr: errors.New("NotFound")}, "k").Validate(ctx))

	_, err := NewCipher(ctx, "")
	assert.ErrorIs(t, err, ErrMissingKey)
}
