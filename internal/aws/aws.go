package aws

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// LoadAWSConfig loads the default credential chain. A shared profile is only
// used outside Kubernetes, where IRSA provides credentials instead.
func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	if !isInKubernetes() {
		options = append(options, config.WithSharedConfigProfile(getProfile()))
	}
	if regionOverride != "" {
		options = append(options, config.WithRegion(regionOverride))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

func isInKubernetes() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

func getProfile() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}

// LogCallerIdentity resolves and logs the AWS principal that will be used for KMS signing,
// failing early when credentials are missing.
func LogCallerIdentity(ctx context.Context, cfg aws.Config, logger *zap.Logger) error {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("failed to resolve AWS caller identity: %w", err)
	}
	logger.Sugar().Infow("Using AWS identity for request signing",
		"account", aws.ToString(out.Account),
		"arn", aws.ToString(out.Arn),
		"region", cfg.Region,
	)
	return nil
}
