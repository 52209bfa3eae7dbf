package s3

import "github.com/aws/aws-sdk-go-v2/credentials"

// staticCredentials wraps a fixed access key pair, used for R2 which has no
// IAM role chain to assume.
func staticCredentials(accessKeyID, secretAccessKey string) credentials.StaticCredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
}
