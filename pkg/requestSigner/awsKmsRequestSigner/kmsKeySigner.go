package awsKmsRequestSigner

import (
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
)

// KMSSignAPI is the slice of the KMS client used for signing.
type KMSSignAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSKeySigner exposes an RSA key held in KMS as a crypto.Signer. Sign calls run under ctx,
// so a signer is built per operation.
type KMSKeySigner struct {
	ctx       context.Context
	client    KMSSignAPI
	keyId     string
	publicKey *rsa.PublicKey
}

func NewKMSKeySigner(ctx context.Context, client KMSSignAPI, keyId string, publicKey *rsa.PublicKey) *KMSKeySigner {
	return &KMSKeySigner{
		ctx:       ctx,
		client:    client,
		keyId:     keyId,
		publicKey: publicKey,
	}
}

func (s *KMSKeySigner) Public() crypto.PublicKey {
	return s.publicKey
}

// Sign signs a SHA-256 digest with RSASSA-PKCS1-v1_5.
func (s *KMSKeySigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts == nil || opts.HashFunc() != crypto.SHA256 {
		return nil, fmt.Errorf("unsupported signer options, only SHA-256 PKCS#1 v1.5 is supported")
	}
	if _, isPSS := opts.(*rsa.PSSOptions); isPSS {
		return nil, fmt.Errorf("RSA-PSS is not supported")
	}
	out, err := s.client.Sign(s.ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyId),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign with KMS key %s", s.keyId)
	}
	return out.Signature, nil
}

var _ crypto.Signer = (*KMSKeySigner)(nil)
