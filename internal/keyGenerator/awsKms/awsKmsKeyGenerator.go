package awsKms

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/Layr-Labs/custody-web3-provider/internal/keyGenerator"
	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner/awsKmsRequestSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSAPI is the slice of the KMS client the generator uses.
type KMSAPI interface {
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AWSKMSKeyGenerator creates API signing keys that never leave AWS KMS. The CSR is signed by KMS.
type AWSKMSKeyGenerator struct {
	logger      *zap.Logger
	kmsClient   KMSAPI
	awsRegion   string
	environment string
}

func NewAWSKMSKeyGenerator(awsCfg aws.Config, environment string, logger *zap.Logger) *AWSKMSKeyGenerator {
	return NewAWSKMSKeyGeneratorWithClient(kms.NewFromConfig(awsCfg), awsCfg.Region, environment, logger)
}

func NewAWSKMSKeyGeneratorWithClient(client KMSAPI, awsRegion string, environment string, logger *zap.Logger) *AWSKMSKeyGenerator {
	return &AWSKMSKeyGenerator{
		logger:      logger,
		kmsClient:   client,
		awsRegion:   awsRegion,
		environment: environment,
	}
}

// GenerateApiKey creates an RSA_4096 key, aliases it when aliasName is set, and returns it with a KMS-signed CSR.
func (a *AWSKMSKeyGenerator) GenerateApiKey(ctx context.Context, keyName string, commonName string) (*keyGenerator.GeneratedApiKey, error) {
	keyRes, err := a.createApiSigningKey(ctx, keyName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create API key %s in region %s", keyName, a.awsRegion)
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	if err := a.createKeyAlias(ctx, keyId, keyName); err != nil {
		return nil, errors.Wrapf(err, "failed to create alias %s for key %s in region %s", keyName, keyId, a.awsRegion)
	}

	key, err := a.GetApiKeyById(ctx, keyId)
	if err != nil {
		return nil, err
	}

	csr, err := keyGenerator.CreateCSR(awsKmsRequestSigner.NewKMSKeySigner(ctx, a.kmsClient, keyId, key.PublicKey), commonName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create CSR for key %s", keyId)
	}
	key.CsrPEM = csr

	a.logger.Sugar().Infow("Generated KMS API key", "keyId", keyId, "alias", fmt.Sprintf("alias/%s", keyName), "region", a.awsRegion)
	return key, nil
}

func (a *AWSKMSKeyGenerator) GetApiKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedApiKey, error) {
	out, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s in region %s", keyId, a.awsRegion)
	}

	parsed, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %s is not an RSA key", keyId)
	}

	return &keyGenerator.GeneratedApiKey{
		KeyId:     keyId,
		PublicKey: pub,
	}, nil
}

func (a *AWSKMSKeyGenerator) createApiSigningKey(ctx context.Context, keyName string) (*kms.CreateKeyOutput, error) {
	input := &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecRsa4096,
		Description: aws.String(fmt.Sprintf("Custody API request signing key - %s", keyName)),
		Tags: []types.Tag{
			{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
			{TagKey: aws.String("Environment"), TagValue: aws.String(a.environment)},
			{TagKey: aws.String("Purpose"), TagValue: aws.String("custody-api-signing")},
			{TagKey: aws.String("KeyType"), TagValue: aws.String("RSA")},
		},
	}

	result, err := a.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}
	return result, nil
}

func (a *AWSKMSKeyGenerator) createKeyAlias(ctx context.Context, keyId, aliasName string) error {
	_, err := a.kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
		TargetKeyId: aws.String(keyId),
	})
	if err != nil {
		return fmt.Errorf("failed to create key alias: %w", err)
	}
	return nil
}

var _ keyGenerator.IKeyGenerator = (*AWSKMSKeyGenerator)(nil)
