package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
)

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadAWSConfig: %v", err)
	}
	if awsCfg.Region != "us-east-1" {
		t.Fatalf("expected region us-east-1, got %q", awsCfg.Region)
	}

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %v (%v)", creds.AccessKeyID, err)
	}

	for _, service := range []string{sqs.ServiceID, s3.ServiceID} {
		endpoint, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(service, "us-east-1")
		if err != nil {
			t.Fatalf("resolve %s: %v", service, err)
		}
		if endpoint.URL != "http://localhost:4566" {
			t.Fatalf("expected override for %s, got %q", service, endpoint.URL)
		}
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("lambda", "us-east-1"); err == nil {
		t.Fatal("expected unmapped services to fall through")
	}
}

func TestLocalResolverServices(t *testing.T) {
	resolver := localResolver("http://localhost:4566", "us-west-2")

	for _, service := range []string{sqs.ServiceID, dynamodb.ServiceID, s3.ServiceID, bedrockruntime.ServiceID} {
		endpoint, err := resolver.ResolveEndpoint(service, "us-west-2")
		if err != nil {
			t.Fatalf("resolve %s: %v", service, err)
		}
		if endpoint.SigningRegion != "us-west-2" {
			t.Fatalf("expected signing region us-west-2 for %s, got %q", service, endpoint.SigningRegion)
		}
		if endpoint.HostnameImmutable != (service == s3.ServiceID) {
			t.Fatalf("unexpected hostname immutability for %s", service)
		}
	}
}

func TestLoadOptionsSkipsPartialCredentials(t *testing.T) {
	if got := len(loadOptions(&appconfig.Config{AWSRegion: "us-east-1", AWSAccessKeyID: "only-key"})); got != 1 {
		t.Fatalf("expected region option only, got %d options", got)
	}
	if got := len(loadOptions(&appconfig.Config{AWSRegion: "us-east-1", AWSAccessKeyID: "k", AWSSecretAccessKey: "s"})); got != 2 {
		t.Fatalf("expected region and credentials options, got %d", got)
	}
}
