package awsKmsRequestSigner

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSAPI is the slice of the KMS client the request signer uses.
type KMSAPI interface {
	KMSSignAPI
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// AWSKMSRequestSigner signs request tokens with an RSA_2048/4096 key that never leaves AWS KMS.
type AWSKMSRequestSigner struct {
	logger    *zap.Logger
	kmsClient KMSAPI
	keyId     string

	mu        sync.Mutex
	publicKey *rsa.PublicKey
}

func NewAWSKMSRequestSigner(awsCfg aws.Config, keyId string, logger *zap.Logger) *AWSKMSRequestSigner {
	return NewAWSKMSRequestSignerWithClient(kms.NewFromConfig(awsCfg), keyId, logger)
}

func NewAWSKMSRequestSignerWithClient(client KMSAPI, keyId string, logger *zap.Logger) *AWSKMSRequestSigner {
	return &AWSKMSRequestSigner{
		logger:    logger,
		kmsClient: client,
		keyId:     keyId,
	}
}

func (a *AWSKMSRequestSigner) SignRequest(ctx context.Context, claims *requestSigner.RequestClaims) (string, error) {
	publicKey, err := a.getPublicKey(ctx)
	if err != nil {
		return "", err
	}

	token, err := claims.Token()
	if err != nil {
		return "", err
	}

	signer := NewKMSKeySigner(ctx, a.kmsClient, a.keyId, publicKey)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), signer))
	if err != nil {
		return "", errors.Wrapf(err, "failed to sign request token with KMS key %s", a.keyId)
	}

	a.logger.Sugar().Debugw("Signed custody request token with KMS", "key_id", a.keyId, "uri", claims.Uri)
	return string(signed), nil
}

// getPublicKey fetches the key's public half once; failures are retried on the next call.
func (a *AWSKMSRequestSigner) getPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publicKey != nil {
		return a.publicKey, nil
	}

	out, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(a.keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for KMS key %s", a.keyId)
	}
	parsed, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for KMS key %s", a.keyId)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("KMS key %s is not an RSA key", a.keyId)
	}
	a.publicKey = pub
	return pub, nil
}

var _ requestSigner.IRequestSigner = (*AWSKMSRequestSigner)(nil)
